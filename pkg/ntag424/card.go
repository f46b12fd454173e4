package ntag424

import "fmt"

// Card is the raw bytes-in/bytes-out transport: a PC/SC card handle or a
// test double. It has no notion of status words, chaining, or sessions —
// those live in codec.go and session.go.
type Card interface {
	Transmit(apdu []byte) ([]byte, error)
}

// rawExchange sends one APDU and splits the trailing status word from the
// response body. It never retries and never interprets the status word.
func rawExchange(card Card, apdu []byte) (body []byte, sw uint16, err error) {
	resp, err := card.Transmit(apdu)
	if err != nil {
		return nil, 0, &TransportError{Cause: err}
	}
	if len(resp) < 2 {
		return nil, 0, &TransportError{Cause: fmt.Errorf("short response: %d bytes", len(resp))}
	}
	sw = uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1])
	return resp[:len(resp)-2], sw, nil
}

// GetUID retrieves the card UID via the ISO 7816 GET DATA command
// (FF CA 00 00), trying the wildcard and explicit-length Le forms.
func GetUID(card Card) ([]byte, error) {
	for _, le := range []byte{0x00, 0x04} {
		apdu := []byte{0xFF, 0xCA, 0x00, 0x00, le}
		data, sw, err := rawExchange(card, apdu)
		if err == nil && SwOK(sw) && len(data) > 0 {
			return data, nil
		}
	}
	return nil, &ProtocolError{Cmd: 0xCA, Message: "UID not available via GET DATA"}
}
