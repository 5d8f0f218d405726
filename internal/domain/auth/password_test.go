package auth

import (
	"errors"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"Secret123": true,
		"short1A":   false,
		"secret123": false,
		"SECRET123": false,
		"SecretABC": false,
	}
	for pw, ok := range cases {
		err := ValidatePassword(pw)
		if ok && err != nil {
			t.Errorf("%q: unexpected error %v", pw, err)
		}
		if !ok && !errors.Is(err, ErrWeakPassword) {
			t.Errorf("%q: expected ErrWeakPassword, got %v", pw, err)
		}
	}
}
