// Package naming provides identifier sanitization for table names and
// partition segments.
package naming

import (
	"regexp"
	"strings"
)

// Fallback is returned when nothing usable survives sanitization.
const Fallback = "_"

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-]+`)
var multiUnderscores = regexp.MustCompile(`_+`)

// ToSafeName converts an arbitrary string into an NCName-like identifier made
// of ASCII letters, digits, "_", "." and "-" that does not start with a digit,
// "-" or ".".
//
// Every run of other characters (including "/", "=", ":" and spaces) becomes a
// single "_", consecutive underscores are collapsed and leading or trailing
// underscores are trimmed. A name that would start with a digit, "-" or "." is
// prefixed with "_". An empty result yields Fallback. ToSafeName is total and
// idempotent.
func ToSafeName(raw string) string {
	s := strings.TrimSpace(raw)
	s = invalidChars.ReplaceAllString(s, "_")
	s = multiUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return Fallback
	}
	switch c := s[0]; {
	case c >= '0' && c <= '9', c == '-', c == '.':
		s = "_" + s
	}
	return s
}

// IsSafeName reports whether s is already in the form ToSafeName produces.
func IsSafeName(s string) bool {
	return s != "" && ToSafeName(s) == s
}
