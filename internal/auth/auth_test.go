package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHMACRoundTrip(t *testing.T) {
	t.Parallel()

	v, err := NewHMAC("shared-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := v.Sign("trainee-42")
	userID, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "trainee-42" {
		t.Errorf("userID = %q, want trainee-42", userID)
	}
}

func TestHMACRejectsTampering(t *testing.T) {
	t.Parallel()

	v, _ := NewHMAC("shared-secret")
	token := v.Sign("trainee-42")

	tests := []struct {
		name  string
		token string
	}{
		{"forged user id", "someone-else" + token[strings.LastIndex(token, "."):]},
		{"truncated signature", token[:len(token)-2]},
		{"no signature", "trainee-42"},
		{"trailing dot", "trainee-42."},
		{"leading dot", ".abcdef"},
		{"non-hex signature", "trainee-42.zzzz"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := v.VerifyToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("VerifyToken(%q) err = %v, want ErrInvalidToken", tt.token, err)
			}
		})
	}
}

func TestHMACWrongSecret(t *testing.T) {
	t.Parallel()

	issuer, _ := NewHMAC("secret-a")
	verifier, _ := NewHMAC("secret-b")

	if _, err := verifier.VerifyToken(issuer.Sign("u")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestNewHMACRejectsEmptySecret(t *testing.T) {
	t.Parallel()

	if _, err := NewHMAC(""); err == nil {
		t.Fatal("want error")
	}
}

func TestInsecure(t *testing.T) {
	t.Parallel()

	v := Insecure{}

	if userID, err := v.VerifyToken("trainee-7.whatever"); err != nil || userID != "trainee-7" {
		t.Errorf("VerifyToken = %q, %v", userID, err)
	}
	if userID, err := v.VerifyToken("bare-id"); err != nil || userID != "bare-id" {
		t.Errorf("VerifyToken = %q, %v", userID, err)
	}
	if _, err := v.VerifyToken(""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}
