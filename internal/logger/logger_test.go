package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestAnonymize(t *testing.T) {
	cases := []struct{ in, want string }{
		{"login for a@x.com", "login for [REDACTED_EMAIL]"},
		{"token eyJhbGciOiJIUzI1NiJ9.eyJ1Ijp7fX0.sig", "token [REDACTED_TOKEN]"},
		{"password=hunter2 ok", "password=[REDACTED] ok"},
		{"hash $2a$10$" + strings.Repeat("a", 53), "hash [REDACTED_HASH]"},
		{"user_id=42 liked post", "user_id=42 liked post"},
	}
	for _, c := range cases {
		if got := Anonymize(c.in); got != c.want {
			t.Errorf("Anonymize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLogWritesOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Error("store", "write failed for b@x.com", errors.New("secret=abc"))

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected a single line, got %q", line)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry.Level != ErrorLevel || entry.Module != "store" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if strings.Contains(line, "b@x.com") || strings.Contains(line, "abc") {
		t.Fatalf("sensitive data leaked: %s", line)
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("engage", "created")
	l.Warn("engage", "Version conflict on post, retrying")
	l.Debug("engage", "details")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	want := []LogLevel{InfoLevel, WarnLevel, DebugLevel}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry.Level != want[i] || entry.Error != "" {
			t.Fatalf("line %d: unexpected entry %+v", i, entry)
		}
	}
}
