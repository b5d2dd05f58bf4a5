// Package logsafe sanitizes user-controlled strings before they reach a log
// line, so a post's name, subject, or comment can't forge extra log entries
// by embedding control characters.
package logsafe

import (
	"strings"
	"unicode"
)

const maxLength = 100

// String escapes control characters and truncates s for safe inclusion in a
// structured log field.
func String(s string) string {
	if s == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\t':
			result.WriteString("\\t")
		case unicode.IsControl(r):
			result.WriteString("?")
		case r == '\\':
			result.WriteString("\\\\")
		case unicode.IsPrint(r):
			result.WriteRune(r)
		default:
			result.WriteString("?")
		}
	}

	if result.Len() > maxLength {
		return result.String()[:maxLength] + "...[truncated]"
	}

	return result.String()
}
