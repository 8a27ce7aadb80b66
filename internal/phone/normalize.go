// Package phone canonicalizes caller identifiers. Every ingress path runs
// numbers through Normalize so the same physical number always maps to the
// same string, which the per-tenant uniqueness of Contact.PhoneNumber
// depends on.
package phone

import "strings"

// Normalize converts a raw caller identifier into canonical +digits form.
// All characters except ASCII digits are stripped, a leading + is preserved,
// and a + is prepended when absent. It never fails; empty or garbage input
// yields the degenerate "+".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw) + 1)
	b.WriteByte('+')
	for i := 0; i < len(raw); i++ {
		if c := raw[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
