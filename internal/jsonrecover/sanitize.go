package jsonrecover

import (
	"strings"
)

const fence = "```"

// Sanitize removes a leading and a trailing markdown code fence from a raw
// completion and trims the surrounding whitespace. The opening fence may
// carry an info string such as "json". Text without fences is only trimmed.
func Sanitize(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, fence) {
		s = s[len(fence):]
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			if isInfoString(s[:nl]) {
				s = s[nl+1:]
			}
		} else {
			// Single-line form: ```json {...}```
			s = strings.TrimLeft(s, " \t")
			if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
				s = s[4:]
			}
		}
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, fence)
	return strings.TrimSpace(s)
}

// isInfoString reports whether the rest of the opening fence line is a
// language tag rather than the start of the document.
func isInfoString(line string) bool {
	line = strings.TrimSpace(line)
	return !strings.ContainsAny(line, "{[\"")
}
