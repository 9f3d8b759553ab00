package main

import "testing"

func TestValidateAccountNumber(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"0123456789", true},
		{"012345678", false},
		{"01234567890", false},
		{"01234abcde", false},
		{"", false},
	}
	for _, tt := range tests {
		err := validateAccountNumber(tt.input)
		if (err == nil) != tt.valid {
			t.Errorf("validateAccountNumber(%q) error = %v, expected valid=%v", tt.input, err, tt.valid)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	if err := validateEmail("ada@example.com"); err != nil {
		t.Errorf("Expected valid email, got %v", err)
	}
	for _, email := range []string{"", "ada", "ada@example", "@example.com"} {
		if err := validateEmail(email); err == nil {
			t.Errorf("Expected %q to be rejected", email)
		}
	}
}

func TestParseOpeningBalance(t *testing.T) {
	amount, err := parseOpeningBalance("1000.50")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if amount.StringFixed(2) != "1000.50" {
		t.Errorf("Expected 1000.50, got %s", amount.StringFixed(2))
	}
	if _, err := parseOpeningBalance("-1"); err == nil {
		t.Error("Expected negative balance to be rejected")
	}
	if _, err := parseOpeningBalance("lots"); err == nil {
		t.Error("Expected non-numeric balance to be rejected")
	}
	if err := validateName("A"); err == nil {
		t.Error("Expected one-letter name to be rejected")
	}
}
