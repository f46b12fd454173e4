package ntag424

import "fmt"

// Status word constants for ISO 7816 and DESFire responses.
const (
	// ISO 7816 status words
	SWSuccess              = 0x9000 // ISO success
	SWSecurityNotSatisfied = 0x6982 // Security status not satisfied (need auth)
	SWFileNotFound         = 0x6A82 // File not found
	SWWrongP1P2            = 0x6A86 // Incorrect P1/P2 parameters
	SWWrongLength          = 0x6700 // Wrong length
	SWWrongLe              = 0x6C00 // Wrong Le (mask: 0x6C00, correct Le in SW2)

	// DESFire status words
	SWDESFireOK     = 0x9100 // DESFire success (operation complete)
	SWMoreData      = 0x91AF // Additional frame expected
	SWLengthError   = 0x917E // Length error (wrong Le, bad fileNo, or format error)
	SWAuthError     = 0x91AE // Authentication error (wrong key for slot)
	SWAuthRateLimit = 0x91AD // Authentication attempts exhausted, cool down before retry
	SWIntegrityErr  = 0x911E // CMAC or padding invalid
	SWPermDenied    = 0x919D // Permission denied (authenticated but insufficient rights)
	SWParameterErr  = 0x919E // Parameter error (invalid settings data)
	SWBoundaryError = 0x911C // Command not allowed / boundary error (read past file end)
	SWNoChanges     = 0x9140 // No changes (settings already match)
	SWCommandAbort  = 0x91CA // Command aborted (general failure)
	SWNotFound      = 0x91F0 // File or key index does not exist
)

// SwOK checks if a status word indicates success (ISO 9000 or DESFire 9100).
func SwOK(sw uint16) bool {
	return sw == SWSuccess || sw == SWDESFireOK
}

// SWError represents a raw status word failure from the card. It is the
// error the codec returns; Classify turns it into one of the typed kinds
// below, which is what the provisioning engine and key store branch on.
type SWError struct {
	Cmd byte
	SW  uint16
}

func (e *SWError) Error() string {
	return fmt.Sprintf("card command 0x%02X failed with SW=0x%04X (%s)", e.Cmd, e.SW, swDescription(e.SW))
}

func swDescription(sw uint16) string {
	switch sw {
	case SWSuccess:
		return "success"
	case SWDESFireOK:
		return "DESFire OK"
	case SWMoreData:
		return "more data expected"
	case SWLengthError:
		return "length error"
	case SWAuthError:
		return "authentication error"
	case SWAuthRateLimit:
		return "authentication rate limited"
	case SWIntegrityErr:
		return "integrity error (bad CMAC or padding)"
	case SWPermDenied:
		return "permission denied"
	case SWParameterErr:
		return "parameter error"
	case SWBoundaryError:
		return "boundary error"
	case SWNoChanges:
		return "no changes"
	case SWCommandAbort:
		return "command aborted"
	case SWSecurityNotSatisfied:
		return "security not satisfied"
	case SWFileNotFound:
		return "file not found"
	case SWWrongP1P2:
		return "wrong P1/P2"
	case SWWrongLength:
		return "wrong length"
	case SWNotFound:
		return "not found"
	default:
		if (sw & 0xFF00) == SWWrongLe {
			return fmt.Sprintf("wrong Le (correct Le=%d)", sw&0xFF)
		}
		return "unknown error"
	}
}

// AuthenticationFailed is SW=91AE or a bad RndA'/RndB' check: wrong key.
type AuthenticationFailed struct {
	Cmd   byte
	Cause error
}

func (e *AuthenticationFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed (cmd 0x%02X): %v", e.Cmd, e.Cause)
	}
	return fmt.Sprintf("authentication failed (cmd 0x%02X, SW=%04X)", e.Cmd, SWAuthError)
}
func (e *AuthenticationFailed) Unwrap() error { return e.Cause }

// AuthenticationRateLimited is SW=91AD: caller must pause before retrying.
type AuthenticationRateLimited struct {
	Cmd byte
}

func (e *AuthenticationRateLimited) Error() string {
	return fmt.Sprintf("authentication rate limited (cmd 0x%02X, SW=%04X)", e.Cmd, SWAuthRateLimit)
}

// IntegrityError is SW=911E: CMAC or padding invalid. Always indicates a
// code bug in this subsystem, never bad user input.
type IntegrityError struct {
	Cmd   byte
	Cause error
}

func (e *IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integrity error (cmd 0x%02X): %v", e.Cmd, e.Cause)
	}
	return fmt.Sprintf("integrity error (cmd 0x%02X, SW=%04X)", e.Cmd, SWIntegrityErr)
}
func (e *IntegrityError) Unwrap() error { return e.Cause }

// LengthError is SW=917E or a wrong-Le status: APDU size exceeds tag limits.
type LengthError struct {
	Cmd byte
	SW  uint16
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("length error (cmd 0x%02X, SW=%04X)", e.Cmd, e.SW)
}

// PermissionDenied is SW=919D: access right disallows the command.
type PermissionDenied struct {
	Cmd byte
}

func (e *PermissionDenied) Error() string {
	return fmt.Sprintf("permission denied (cmd 0x%02X, SW=%04X)", e.Cmd, SWPermDenied)
}

// NotFoundError is SW=91F0 or SW=6A82: file or key index does not exist.
type NotFoundError struct {
	Cmd byte
	SW  uint16
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found (cmd 0x%02X, SW=%04X)", e.Cmd, e.SW)
}

// TransportError wraps a reader-level or timeout failure from the Card.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// ProtocolError is an unexpected status word, malformed response, or
// continuation-frame violation.
type ProtocolError struct {
	Cmd     byte
	SW      uint16
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("protocol error (cmd 0x%02X, SW=%04X): %s", e.Cmd, e.SW, e.Message)
	}
	return fmt.Sprintf("protocol error (cmd 0x%02X, SW=%04X)", e.Cmd, e.SW)
}

// Classify converts a raw status-word failure into one of the typed error
// kinds above, never leaving a bare *SWError for a caller to branch on.
func Classify(cmd byte, sw uint16, cause error) error {
	switch sw {
	case SWAuthError, SWSecurityNotSatisfied:
		return &AuthenticationFailed{Cmd: cmd, Cause: cause}
	case SWAuthRateLimit:
		return &AuthenticationRateLimited{Cmd: cmd}
	case SWIntegrityErr:
		return &IntegrityError{Cmd: cmd, Cause: cause}
	case SWLengthError, SWWrongLength:
		return &LengthError{Cmd: cmd, SW: sw}
	case SWPermDenied:
		return &PermissionDenied{Cmd: cmd}
	case SWNotFound, SWFileNotFound:
		return &NotFoundError{Cmd: cmd, SW: sw}
	default:
		if (sw & 0xFF00) == SWWrongLe {
			return &LengthError{Cmd: cmd, SW: sw}
		}
		return &ProtocolError{Cmd: cmd, SW: sw}
	}
}
