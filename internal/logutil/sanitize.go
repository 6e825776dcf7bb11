package logutil

import (
	"net/url"
	"strconv"
	"strings"
)

// SanitizeForLog flattens server- or user-supplied text onto one line so it
// cannot forge extra log entries. Newlines and tabs become spaces and other
// control characters are dropped.
func SanitizeForLog(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case r < 32 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens s to at most n bytes of content, marking the cut.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "...(" + strconv.Itoa(len(s)-n) + " more)"
}

// RedactToken masks the token query parameter of a URL so session URLs can
// be logged and shown in diagnostics.
func RedactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("token") == "" {
		return raw
	}
	q.Set("token", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
