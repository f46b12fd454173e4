package ntag424

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassifyMapsStatusWordsToTypedKinds(t *testing.T) {
	cases := []struct {
		sw   uint16
		want interface{}
	}{
		{SWAuthError, &AuthenticationFailed{}},
		{SWAuthRateLimit, &AuthenticationRateLimited{}},
		{SWIntegrityErr, &IntegrityError{}},
		{SWLengthError, &LengthError{}},
		{SWPermDenied, &PermissionDenied{}},
		{SWNotFound, &NotFoundError{}},
		{0x6C05, &LengthError{}},
		{0x9999, &ProtocolError{}},
	}
	for _, c := range cases {
		got := Classify(0xAD, c.sw, nil)
		gotType := reflect.TypeOf(got)
		wantType := reflect.TypeOf(c.want)
		if gotType != wantType {
			t.Fatalf("Classify(0x%04X) = %v, want type %v", c.sw, gotType, wantType)
		}
	}
}

func TestIntegrityErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := &IntegrityError{Cmd: 0xAD, Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatal("IntegrityError must unwrap to its cause")
	}
}
