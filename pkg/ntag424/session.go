package ntag424

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

// CommMode is the communication mode a command declares: what wrapping the
// session must apply to its header and payload before it reaches the wire.
type CommMode int

const (
	// CommModePlain sends header and payload unmodified.
	CommModePlain CommMode = iota
	// CommModeMAC appends a truncated CMAC over header+payload.
	CommModeMAC
	// CommModeFull encrypts the payload (ISO 7816-4 padded) under the
	// session encryption key, then appends a truncated CMAC over
	// header+ciphertext.
	CommModeFull
)

// Session carries the keys and counter established by AuthenticateEV2First.
// It is a linear resource: exactly one card scope owns it, and Close zeroes
// the key material so a leaked reference cannot be replayed.
type Session struct {
	ti          [4]byte
	sesAuthEnc  [16]byte
	sesAuthMac  [16]byte
	cmdCounter  uint16
	authKeySlot byte
	closed      bool
}

// TI returns the session's 4-byte transaction identifier.
func (s *Session) TI() [4]byte { return s.ti }

// CmdCounter returns the current command counter.
func (s *Session) CmdCounter() uint16 { return s.cmdCounter }

// AuthKeySlot returns the key slot this session authenticated against.
func (s *Session) AuthKeySlot() byte { return s.authKeySlot }

// Close zeroes the session keys. A session whose key slot 0 was just
// changed on the tag is already unusable at the protocol level; Close
// additionally makes it unusable at the Go level by erasing the keys it
// would otherwise still hold in memory.
func (s *Session) Close() {
	if s == nil || s.closed {
		return
	}
	for i := range s.sesAuthEnc {
		s.sesAuthEnc[i] = 0
	}
	for i := range s.sesAuthMac {
		s.sesAuthMac[i] = 0
	}
	s.closed = true
}

// deriveSessionKeys builds ses_auth_enc_key and ses_auth_mac_key from the
// two 16-byte randoms exchanged during AuthenticateEV2First, per NXP
// AN12343. The 32-byte seed vectors share a layout; only the two leading
// constant bytes differ between the encryption and MAC derivations.
func deriveSessionKeys(key, rndA, rndB []byte) (encKey, macKey []byte, err error) {
	buildSV := func(b0, b1 byte) []byte {
		sv := make([]byte, 32)
		sv[0], sv[1] = b0, b1
		sv[2], sv[3], sv[4], sv[5] = 0x00, 0x01, 0x00, 0x80
		copy(sv[6:8], rndA[0:2])
		for i := 0; i < 6; i++ {
			sv[8+i] = rndA[2+i] ^ rndB[i]
		}
		copy(sv[14:24], rndB[6:16])
		copy(sv[24:32], rndA[8:16])
		return sv
	}

	svMac := buildSV(0xA5, 0x5A)
	svEnc := buildSV(0x5A, 0xA5)

	macKey, err = AESCMAC(key, svMac)
	if err != nil {
		return nil, nil, err
	}
	encKey, err = AESCMAC(key, svEnc)
	if err != nil {
		return nil, nil, err
	}
	return encKey, macKey, nil
}

// commandIV builds the per-command IV: ECB-encrypt(ses_auth_enc_key,
// lead0 || lead1 || ti(4) || counter(2 LE) || 0x00 x 8).
func (s *Session) commandIV(lead0, lead1 byte, counter uint16) ([]byte, error) {
	in := make([]byte, 16)
	in[0], in[1] = lead0, lead1
	copy(in[2:6], s.ti[:])
	in[6] = byte(counter)
	in[7] = byte(counter >> 8)
	return AES128ECBEncrypt(s.sesAuthEnc[:], in)
}

// Execute sends cmd through this session, applying the comm-mode wrapping
// it declares, and returns the decoded (decrypted, unwrapped) response
// body. The command counter is captured before the exchange and advanced
// only once the tag has returned a terminal success — never on failure,
// and never before the exchange completes. This ordering is the single
// most error-prone part of the protocol: incrementing early desyncs the
// session from the tag and every following command fails with 911E.
func (s *Session) Execute(card Card, cmd Command) ([]byte, error) {
	if s == nil || s.closed {
		return nil, &ProtocolError{Cmd: cmd.INS(), Message: "session is closed"}
	}

	current := s.cmdCounter
	header := cmd.UnencryptedHeader()
	payload := cmd.PlaintextPayload()
	mode := cmd.CommMode()

	var encPayload []byte
	if mode == CommModeFull && len(payload) > 0 {
		iv, err := s.commandIV(0xA5, 0x5A, current)
		if err != nil {
			return nil, err
		}
		padded := PadISO7816_4(payload)
		encPayload, err = AES128CBCEncrypt(s.sesAuthEnc[:], iv, padded)
		if err != nil {
			return nil, err
		}
	} else if mode == CommModeFull {
		encPayload = []byte{}
	} else {
		encPayload = payload
	}

	var apduData []byte
	apduData = append(apduData, header...)
	apduData = append(apduData, encPayload...)

	if mode == CommModeMAC || mode == CommModeFull {
		macBody := encPayload
		if mode == CommModeMAC {
			macBody = payload
		}
		mact, err := s.macTag(cmd.INS(), current, header, macBody)
		if err != nil {
			return nil, err
		}
		apduData = append(apduData, mact...)
	}

	apdu := BuildAPDU(claProprietary, cmd.INS(), 0x00, 0x00, apduData, true)
	slog.Debug("ntag424 exchange", "ins", fmt.Sprintf("0x%02X", cmd.INS()), "ctr", current, "mode", mode)

	body, sw, err := Exchange(card, cmd.INS(), apdu)
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) {
		return nil, Classify(cmd.INS(), sw, nil)
	}

	decoded, err := s.unwrap(cmd.INS(), sw, current, mode, body)
	if err != nil {
		return nil, err
	}
	s.cmdCounter = current + 1
	return decoded, nil
}

// macTag computes the truncated CMAC over INS || counter(2 LE) || ti(4) ||
// header || macBody.
func (s *Session) macTag(ins byte, counter uint16, header, macBody []byte) ([]byte, error) {
	in := make([]byte, 0, 7+len(header)+len(macBody))
	in = append(in, ins, byte(counter), byte(counter>>8))
	in = append(in, s.ti[:]...)
	in = append(in, header...)
	in = append(in, macBody...)
	cmac, err := AESCMAC(s.sesAuthMac[:], in)
	if err != nil {
		return nil, err
	}
	return TruncateCMAC(cmac), nil
}

// unwrap verifies the response CMAC (for MAC/Full) and decrypts the
// response payload (for Full), returning the caller-visible body.
func (s *Session) unwrap(ins byte, sw uint16, counter uint16, mode CommMode, body []byte) ([]byte, error) {
	if mode == CommModePlain {
		return body, nil
	}

	if len(body) < 8 {
		return nil, &IntegrityError{Cmd: ins, Cause: fmt.Errorf("response too short for MAC: %d bytes", len(body))}
	}
	respEnc := body[:len(body)-8]
	respMac := body[len(body)-8:]

	next := counter + 1
	macIn := make([]byte, 0, 7+len(respEnc))
	macIn = append(macIn, byte(sw), byte(next), byte(next>>8))
	macIn = append(macIn, s.ti[:]...)
	macIn = append(macIn, respEnc...)

	cmac, err := AESCMAC(s.sesAuthMac[:], macIn)
	if err != nil {
		return nil, err
	}
	want := TruncateCMAC(cmac)
	if !bytes.Equal(want, respMac) {
		slog.Debug("response MAC mismatch", "ins", fmt.Sprintf("0x%02X", ins),
			"want", strings.ToUpper(hex.EncodeToString(want)),
			"got", strings.ToUpper(hex.EncodeToString(respMac)))
		return nil, &IntegrityError{Cmd: ins, Cause: fmt.Errorf("response MAC mismatch")}
	}

	if mode == CommModeMAC || len(respEnc) == 0 {
		return respEnc, nil
	}

	iv, err := s.commandIV(0x5A, 0xA5, next)
	if err != nil {
		return nil, err
	}
	dec, err := AES128CBCDecrypt(s.sesAuthEnc[:], iv, respEnc)
	if err != nil {
		return nil, err
	}
	return UnpadISO7816_4(dec)
}
