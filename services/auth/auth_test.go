package auth

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if hash == "hunter22" {
		t.Fatal("hash equals the plaintext")
	}
	if !VerifyPassword("hunter22", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter23", hash) {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", DefaultTokenTTL)

	token, err := issuer.Issue("trader")
	if err != nil {
		t.Fatal(err)
	}
	subject, err := issuer.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	if subject != "trader" {
		t.Errorf("subject = %q, want trader", subject)
	}
}

func TestTokenRejections(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", DefaultTokenTTL)

	t.Run("malformed", func(t *testing.T) {
		if _, err := issuer.Parse("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("other-secret", DefaultTokenTTL)
		token, err := other.Issue("trader")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		short := NewTokenIssuer("test-secret", time.Millisecond)
		token, err := short.Issue("trader")
		if err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
		if _, err := short.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("got %v, want ErrInvalidToken", err)
		}
	})
}
