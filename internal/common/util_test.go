package common

import (
	"encoding/hex"
	"errors"
	"testing"
)

func TestMakeRandHexString_LengthAndHex(t *testing.T) {
	const n = 16
	s, err := MakeRandHexString(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != n*2 {
		t.Fatalf("expected hex length %d, got %d", n*2, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		t.Fatalf("string is not valid hex: %v", err)
	}
}

func TestMakeRandHexString_ZeroSize(t *testing.T) {
	s, err := MakeRandHexString(0)
	if err != nil {
		t.Fatalf("unexpected error for size=0: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for size=0, got %q", s)
	}
}

func TestGenerateRandByteArray_Length(t *testing.T) {
	const n = 24
	if got := GenerateRandByteArray(n); len(got) != n {
		t.Fatalf("expected length %d, got %d", n, len(got))
	}
}

func TestValidationError_UnwrapsToSentinel(t *testing.T) {
	err := NewValidationError("username", "must be 3-50 characters")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected errors.Is(err, ErrValidation)")
	}
	if err.Error() != "username: must be 3-50 characters" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestDerivedSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{ErrInvalidToken, ErrUnauthenticated},
		{ErrTokenExpired, ErrUnauthenticated},
		{ErrInvalidCredentials, ErrUnauthenticated},
		{ErrUsernameTaken, ErrConflict},
		{ErrInactiveAccount, ErrForbidden},
	}
	for _, c := range cases {
		if !errors.Is(c.err, c.want) {
			t.Fatalf("%v should wrap %v", c.err, c.want)
		}
	}
}
