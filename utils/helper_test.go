package utils

import "testing"

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		in       string
		expected bool
	}{
		{"buyer@example.com", true},
		{"first.last+tag@sub.example.co", true},
		{"no-at-sign", false},
		{"missing@tld", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.in); got != tc.expected {
			t.Fatalf("IsValidEmail(%q) expected %v, got %v", tc.in, tc.expected, got)
		}
	}
}

func TestNormalizeMobileNumber(t *testing.T) {
	if got := NormalizeMobileNumber("+1 650-253-0000"); got != "+16502530000" {
		t.Fatalf("expected E.164 formatting, got %q", got)
	}
	if got := NormalizeMobileNumber("  not a number  "); got != "notanumber" {
		t.Fatalf("unparseable input must be kept with whitespace stripped, got %q", got)
	}
	if got := NormalizeMobileNumber(""); got != "" {
		t.Fatalf("empty input must stay empty, got %q", got)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("+16502530000", "US"); err != nil {
		t.Fatalf("valid number rejected: %v", err)
	}
	if err := ValidatePhoneNumber("12345", "US"); err == nil {
		t.Fatal("short number must be rejected")
	}
}
