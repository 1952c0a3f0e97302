package frappesync

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestRemoteBool_AcceptsRemoteSpellings(t *testing.T) {
	cases := []struct {
		in       string
		expected bool
	}{
		{`1`, true},
		{`0`, false},
		{`"1"`, true},
		{`"0"`, false},
		{`true`, true},
		{`false`, false},
		{`"yes"`, true},
		{`"no"`, false},
		{`null`, false},
		{`""`, false},
	}
	for _, tc := range cases {
		var b remoteBool
		if err := json.Unmarshal([]byte(tc.in), &b); err != nil {
			t.Fatalf("unmarshal %s error: %v", tc.in, err)
		}
		if bool(b) != tc.expected {
			t.Fatalf("remoteBool(%s) expected %v, got %v", tc.in, tc.expected, b)
		}
	}
}

func TestTruncateFrappeDatetime(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"2024-03-01 10:20:30.123456", "2024-03-01 10:20:30"},
		{"2024-03-01 10:20:30", "2024-03-01 10:20:30"},
		{"  2024-03-01 10:20:30  ", "2024-03-01 10:20:30"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := truncateFrappeDatetime(tc.in); got != tc.expected {
			t.Fatalf("truncateFrappeDatetime(%q) expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestParseFrappeDatetime(t *testing.T) {
	parsed := parseFrappeDatetime("2024-03-01 10:20:30.999999")
	if parsed == nil {
		t.Fatal("expected a parsed time")
	}
	expected := time.Date(2024, 3, 1, 10, 20, 30, 0, time.UTC)
	if !parsed.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, parsed)
	}

	if parseFrappeDatetime("") != nil {
		t.Fatal("empty input must parse to nil")
	}
	if parseFrappeDatetime("garbage") != nil {
		t.Fatal("unparseable input must parse to nil")
	}
}

func TestCodeRowCarriesSearchLimitFlag(t *testing.T) {
	found := false
	for _, field := range codeFields {
		if field == "is_search_limit_reached" {
			found = true
		}
	}
	if !found {
		t.Fatal("codes projection must request is_search_limit_reached")
	}

	raw := `{"name":"SC-1","secret_code":"123456789012","public_code":"10100000",` +
		`"batch_code":"B000001","status":"Active","is_printed":0,"is_search_limit_reached":1,` +
		`"searched_count_success":3,"searched_count_fail":0}`
	var row frappeSecretCode
	if err := json.Unmarshal([]byte(raw), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bool(row.IsSearchLimitReached) {
		t.Fatal("is_search_limit_reached must decode to true")
	}
	if bool(row.IsPrinted) {
		t.Fatal("is_printed must decode to false")
	}
}

func TestApplyCodePageSkipsIncompleteRows(t *testing.T) {
	rows := []json.RawMessage{
		json.RawMessage(`{"name":"SC-1","secret_code":"","public_code":"10100000","batch_code":"B000001"}`),
		json.RawMessage(`{"name":"SC-2","secret_code":"123456789012","public_code":"","batch_code":"B000001"}`),
		json.RawMessage(`{"name":"SC-3","secret_code":"123456789013","public_code":"10100001","batch_code":""}`),
	}

	// Every row is incomplete, so the page applies without touching the store.
	inserted, err := applyCodePage(context.Background(), rows)
	if err != nil {
		t.Fatalf("applyCodePage: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected 0 inserts, got %d", inserted)
	}
}

func TestStreamSettingNames(t *testing.T) {
	for _, stream := range []string{StreamSecretCodes, StreamLogs, StreamLeads} {
		if streamEnabledSetting[stream] == "" {
			t.Fatalf("stream %q has no enabled setting", stream)
		}
		if streamCursorSetting[stream] == "" {
			t.Fatalf("stream %q has no cursor setting", stream)
		}
	}
}
