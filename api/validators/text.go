package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizePrompt strips control characters (newlines and tabs survive),
// trims the result and cuts it to maxRunes runes.
func NormalizePrompt(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == utf8.RuneError || unicode.IsControl(r):
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:maxRunes]))
	}
	return cleaned
}

// NormalizeCode canonicalizes model keys and catalog codes.
func NormalizeCode(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
