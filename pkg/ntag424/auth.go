package ntag424

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// AuthError wraps a failure at a specific pass of AuthenticateEV2First.
type AuthError struct {
	Pass  int // 1 or 2
	SW    uint16
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authenticate pass %d failed: %v", e.Pass, e.Cause)
	}
	return fmt.Sprintf("authenticate pass %d failed (SW=%04X)", e.Pass, e.SW)
}
func (e *AuthError) Unwrap() error { return e.Cause }

// Authenticate drives the two-pass AuthenticateEV2First handshake against
// keySlot using key, and returns a new Session as a scoped resource: the
// caller owns it for exactly the lifetime of one card connection and must
// Close it (directly, or by letting a subsequent key-slot-0 ChangeKey
// invalidate it on the tag side) before the scope ends.
func Authenticate(card Card, key []byte, keySlot byte) (*Session, error) {
	iv0 := make([]byte, 16)

	apdu1 := BuildAPDU(claProprietary, 0x71, 0, 0, []byte{keySlot, 0x00}, true)
	resp1, sw, err := ExchangeOnce(card, apdu1)
	if err != nil {
		return nil, &AuthError{Pass: 1, Cause: err}
	}
	if sw != SWMoreData || len(resp1) != 16 {
		return nil, &AuthError{Pass: 1, SW: sw}
	}

	rndB, err := AES128CBCDecrypt(key, iv0, resp1)
	if err != nil {
		return nil, &AuthError{Pass: 1, Cause: err}
	}

	rndA := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, rndA); err != nil {
		return nil, &AuthError{Pass: 1, Cause: err}
	}

	rndBRot := rotateLeft1(rndB)
	plain := append(append([]byte{}, rndA...), rndBRot...)
	cipherText, err := AES128CBCEncrypt(key, iv0, plain)
	if err != nil {
		return nil, &AuthError{Pass: 2, Cause: err}
	}

	apdu2 := BuildAPDU(claProprietary, 0xAF, 0, 0, cipherText, true)
	// Pass 2's 9100 is a genuine terminal success, never "more data": use
	// ExchangeOnce, not Exchange, so a stray 91AF here is surfaced as a
	// protocol error instead of being chased as a continuation frame.
	resp2, sw, err := ExchangeOnce(card, apdu2)
	if err != nil {
		return nil, &AuthError{Pass: 2, Cause: err}
	}
	if sw != SWDESFireOK || len(resp2) != 32 {
		return nil, &AuthError{Pass: 2, SW: sw}
	}

	dec, err := AES128CBCDecrypt(key, iv0, resp2)
	if err != nil {
		return nil, &AuthError{Pass: 2, Cause: err}
	}

	ti := dec[:4]
	rndARot := dec[4:20]
	if !bytes.Equal(rotateRight1(rndARot), rndA) {
		return nil, &AuthError{Pass: 2, Cause: fmt.Errorf("rndA confirmation mismatch")}
	}

	encKey, macKey, err := deriveSessionKeys(key, rndA, rndB)
	if err != nil {
		return nil, &AuthError{Pass: 2, Cause: err}
	}

	slog.Debug("session established",
		"ti", strings.ToUpper(hex.EncodeToString(ti)),
		"key_slot", keySlot)

	s := &Session{authKeySlot: keySlot}
	copy(s.ti[:], ti)
	copy(s.sesAuthEnc[:], encKey)
	copy(s.sesAuthMac[:], macKey)
	return s, nil
}

// AuthCandidate is one (key, slot) pair AuthenticateAny will try.
type AuthCandidate struct {
	Key  []byte
	Slot byte
}

// AuthenticateAny tries each candidate's key against its slot in order and
// returns the session from the first that succeeds, along with the slot
// that worked. It is for callers that do not know in advance whether a tag
// still has factory (zero) keys or stored keys. Neither the Inspector
// (which never authenticates) nor the provisioning engine (which takes its
// keys from the store) calls it.
func AuthenticateAny(card Card, candidates []AuthCandidate) (*Session, byte, error) {
	var lastErr error
	for _, c := range candidates {
		sess, err := Authenticate(card, c.Key, c.Slot)
		if err == nil {
			return sess, c.Slot, nil
		}
		lastErr = err
	}
	return nil, 0, lastErr
}

// IsZeroKey reports whether key is the all-zero factory default.
func IsZeroKey(key []byte) bool {
	for _, v := range key {
		if v != 0 {
			return false
		}
	}
	return true
}
