package logutil

import "testing"

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line1\nline2", "line1 line2"},
		{"a\r\nb", "a  b"},
		{"tab\there", "tab here"},
		{"bell\x07 and esc\x1b[31m", "bell and esc[31m"},
		{"del\x7f", "del"},
		{"ünïcode", "ünïcode"},
	}
	for _, tt := range tests {
		if got := SanitizeForLog(tt.in); got != tt.want {
			t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate(short) = %q", got)
	}
	if got := Truncate("abcdefghij", 4); got != "abcd...(6 more)" {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Errorf("Truncate(n=0) = %q", got)
	}
}

func TestRedactToken(t *testing.T) {
	got := RedactToken("ws://host:8080/ws/ssh/s1?token=secret%20value")
	if got != "ws://host:8080/ws/ssh/s1?token=REDACTED" {
		t.Errorf("RedactToken() = %q", got)
	}
	if got := RedactToken("ws://host:8080/ws/ssh/s1"); got != "ws://host:8080/ws/ssh/s1" {
		t.Errorf("RedactToken(no token) = %q", got)
	}
}
