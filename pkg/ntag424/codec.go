package ntag424

// claISO and claProprietary are the two CLA bytes of the card commands this
// system sends: 0x00 for ISO 7816 commands (ISOSelectFile, ISOUpdateBinary),
// 0x90 for DESFire-proprietary commands. GetUID's reader-level GET DATA
// pseudo-APDU uses CLA 0xFF instead.
const (
	claISO         = 0x00
	claProprietary = 0x90
)

const insContinue = 0xAF

// BuildAPDU assembles [CLA, INS, P1, P2, Lc, data..., Le]. Le is omitted
// when trailingLe is false (some ISO commands, e.g. UPDATE BINARY, carry
// no Le byte at all).
func BuildAPDU(cla, ins, p1, p2 byte, data []byte, trailingLe bool) []byte {
	apdu := make([]byte, 0, 5+len(data)+1)
	apdu = append(apdu, cla, ins, p1, p2, byte(len(data)))
	apdu = append(apdu, data...)
	if trailingLe {
		apdu = append(apdu, 0x00)
	}
	return apdu
}

// Exchange sends one APDU and transparently follows DESFire continuation
// framing: on 91AF it issues `90 AF 00 00 00 00` continuation APDUs and
// concatenates response bodies until a terminal status word comes back.
//
// Some protocol steps must NOT use this transparent form and call
// ExchangeOnce instead: both passes of AuthenticateEV2First (pass 1's 91AF
// is the handoff to pass 2, not a request for more data, and pass 2 must
// end in 9100) and any command whose continuation frames carry their own
// per-frame CMAC.
func Exchange(card Card, cmd byte, apdu []byte) ([]byte, uint16, error) {
	body, sw, err := rawExchange(card, apdu)
	if err != nil {
		return nil, 0, err
	}
	if sw != SWMoreData {
		return body, sw, nil
	}

	out := append([]byte{}, body...)
	for sw == SWMoreData {
		cont := []byte{claProprietary, insContinue, 0x00, 0x00, 0x00, 0x00}
		var contBody []byte
		contBody, sw, err = rawExchange(card, cont)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, contBody...)
	}
	return out, sw, nil
}

// ExchangeOnce sends a single APDU and returns its raw status word without
// following continuation framing.
func ExchangeOnce(card Card, apdu []byte) ([]byte, uint16, error) {
	return rawExchange(card, apdu)
}
