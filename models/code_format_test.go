package models

import "testing"

func TestCodeFormatKind(t *testing.T) {
	cases := []struct {
		in       string
		expected CodeFormat
	}{
		{"123456789012", FormatDigits12},
		{"000000000000", FormatDigits12},
		{"A1B2C3D4E5F60718", FormatHex16},
		{"a1b2c3d4e5f60718", FormatHex16},
		{"12345678901", FormatInvalid},
		{"1234567890123", FormatInvalid},
		{"12345678", FormatInvalid},
		{"A1B2C3D4E5F6071", FormatInvalid},
		{"G1B2C3D4E5F60718", FormatInvalid},
		{"", FormatInvalid},
		{"12345678 9012", FormatInvalid},
	}
	for _, tc := range cases {
		if got := CodeFormatKind(tc.in); got != tc.expected {
			t.Fatalf("CodeFormatKind(%q) expected %v, got %v", tc.in, tc.expected, got)
		}
	}
}

func TestFormatPublicCode(t *testing.T) {
	if got := FormatPublicCode(PublicCodeStart); got != "10100000" {
		t.Fatalf("FormatPublicCode(start) expected 10100000, got %s", got)
	}
	if got := FormatPublicCode(42); got != "00000042" {
		t.Fatalf("FormatPublicCode(42) expected 00000042, got %s", got)
	}
}

func TestNormalizePublicCode(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"10100001", "10100001"},
		{"42", "00000042"},
		{"  10100001 ", "10100001"},
		{"not-a-number", "not-a-number"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizePublicCode(tc.in); got != tc.expected {
			t.Fatalf("NormalizePublicCode(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestFormatBatchCode(t *testing.T) {
	if got := FormatBatchCode(1); got != "B000001" {
		t.Fatalf("FormatBatchCode(1) expected B000001, got %s", got)
	}
	if got := FormatBatchCode(123456); got != "B123456" {
		t.Fatalf("FormatBatchCode(123456) expected B123456, got %s", got)
	}
}

func TestMaskedSecretCode(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"123456789012", "********9012"},
		{"1234", "1234"},
		{"", ""},
	}
	for _, tc := range cases {
		rec := SecretCode{SecretCode: tc.in}
		if got := rec.MaskedSecretCode(); got != tc.expected {
			t.Fatalf("MaskedSecretCode(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestNormalizeStatuses(t *testing.T) {
	if got := NormalizeCodeStatus("Active"); got != CodeStatusActive {
		t.Fatalf("NormalizeCodeStatus(Active) got %q", got)
	}
	if got := NormalizeCodeStatus("weird"); got != CodeStatusInactive {
		t.Fatalf("NormalizeCodeStatus(weird) expected inactive, got %q", got)
	}
	if got := NormalizeValidateStatus("VALIDATED"); got != ValidateStatusValidated {
		t.Fatalf("NormalizeValidateStatus(VALIDATED) got %q", got)
	}
	if got := NormalizeValidateStatus(""); got != ValidateStatusPending {
		t.Fatalf("NormalizeValidateStatus(empty) expected pending, got %q", got)
	}
	if got := NormalizeLogStatus("unknown"); got != LogStatusRejected {
		t.Fatalf("NormalizeLogStatus(unknown) expected rejected, got %q", got)
	}
	if got := NormalizeLeadSource(""); got != LeadSourceProductVerification {
		t.Fatalf("NormalizeLeadSource(empty) expected PRODUCT_VERIFICATION, got %q", got)
	}
	if got := NormalizeLeadSource("qr_scan"); got != LeadSourceQRScan {
		t.Fatalf("NormalizeLeadSource(qr_scan) got %q", got)
	}
}
