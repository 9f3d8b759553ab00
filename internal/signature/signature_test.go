package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const testSecret = "whsec_test"

var testBody = []byte(`{"event":"nip","data":{"accountNumber":"0123456789","reference":"R1","amount":500}}`)

func TestSign_MatchesHmacSha512(t *testing.T) {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(testBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	got := NewVerifier(testSecret).Sign(testBody)
	if got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
	if len(got) != 128 {
		t.Errorf("Expected 128 hex characters, got %d", len(got))
	}
}

func TestVerify(t *testing.T) {
	verifier := NewVerifier(testSecret)
	valid := verifier.Sign(testBody)

	tests := []struct {
		name      string
		verifier  *Verifier
		body      []byte
		signature string
		expected  error
	}{
		{"valid", verifier, testBody, valid, nil},
		{"valid uppercase hex", verifier, testBody, strings.ToUpper(valid), nil},
		{"missing signature", verifier, testBody, "", ErrMissingCredentials},
		{"blank signature", verifier, testBody, "   ", ErrMissingCredentials},
		{"empty body", verifier, nil, valid, ErrMissingCredentials},
		{"missing secret", NewVerifier(""), testBody, valid, ErrMissingCredentials},
		{"wrong secret", NewVerifier("other"), testBody, valid, ErrInvalidSignature},
		{"not hex", verifier, testBody, "zz-not-hex", ErrInvalidSignature},
		{"truncated", verifier, testBody, valid[:64], ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.verifier.Verify(tt.body, tt.signature)
			if !errors.Is(err, tt.expected) {
				t.Errorf("Expected %v, got %v", tt.expected, err)
			}
		})
	}
}

func TestVerify_SingleByteMutationFails(t *testing.T) {
	verifier := NewVerifier(testSecret)
	signature := verifier.Sign(testBody)

	for i := range testBody {
		mutated := append([]byte(nil), testBody...)
		mutated[i] ^= 0x01
		if err := verifier.Verify(mutated, signature); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("Mutation at byte %d was accepted: %v", i, err)
		}
	}
}
