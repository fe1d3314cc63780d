package docstore

import "testing"

func TestParseStatus(t *testing.T) {
	for _, status := range AllStatuses() {
		parsed, ok := ParseStatus(string(status))
		if !ok {
			t.Fatalf("ParseStatus(%q) rejected a known status", status)
		}
		if parsed != status {
			t.Fatalf("ParseStatus(%q) = %q", status, parsed)
		}
	}
	if parsed, ok := ParseStatus("  EXTRACTED "); !ok || parsed != StatusExtracted {
		t.Fatalf("expected case-insensitive parse, got %q %v", parsed, ok)
	}
	if _, ok := ParseStatus("nonsense"); ok {
		t.Fatal("expected rejection of unknown status")
	}
	if _, ok := ParseStatus(""); ok {
		t.Fatal("expected rejection of empty status")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusReceived, StatusExtracting, true},
		{StatusExtracting, StatusExtracted, true},
		{StatusExtracted, StatusClassifying, true},
		{StatusClassifying, StatusClassified, true},
		{StatusReceived, StatusFailed, true},
		{StatusClassifying, StatusFailed, true},
		{StatusReceived, StatusExtracted, false},
		{StatusExtracted, StatusReceived, false},
		{StatusClassified, StatusFailed, false},
		{StatusFailed, StatusReceived, false},
		{StatusFailed, StatusFailed, false},
	}
	for _, tc := range cases {
		doc := Document{Status: tc.from}
		if got := doc.CanTransition(tc.to); got != tc.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestAtOrPast(t *testing.T) {
	cases := []struct {
		status, target Status
		want           bool
	}{
		{StatusExtracted, StatusExtracting, true},
		{StatusExtracted, StatusExtracted, true},
		{StatusExtracted, StatusClassifying, false},
		{StatusClassified, StatusReceived, true},
		{StatusFailed, StatusClassified, true},
		{StatusReceived, StatusExtracting, false},
	}
	for _, tc := range cases {
		doc := Document{Status: tc.status}
		if got := doc.AtOrPast(tc.target); got != tc.want {
			t.Errorf("AtOrPast(%s, %s) = %v, want %v", tc.status, tc.target, got, tc.want)
		}
	}
}

func TestTerminalAndProcessing(t *testing.T) {
	if !(Document{Status: StatusClassified}).IsTerminal() || !(Document{Status: StatusFailed}).IsTerminal() {
		t.Fatal("classified and failed are terminal")
	}
	if (Document{Status: StatusExtracting}).IsTerminal() {
		t.Fatal("extracting is not terminal")
	}
	if !(Document{Status: StatusExtracting}).IsProcessing() || !(Document{Status: StatusClassifying}).IsProcessing() {
		t.Fatal("extracting and classifying are processing statuses")
	}
	if (Document{Status: StatusReceived}).IsProcessing() || (Document{Status: StatusExtracted}).IsProcessing() {
		t.Fatal("resting statuses are not processing")
	}
}
