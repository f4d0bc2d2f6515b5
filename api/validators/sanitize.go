package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters and invalid UTF-8, and
// caps the result at maxRunes characters. The cap counts runes so it agrees
// with validator's max tag.
func SanitizeString(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n') {
			return -1
		}
		return r
	}, strings.ToValidUTF8(input, ""))
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	count := 0
	for i := range cleaned {
		if count == maxRunes {
			return strings.TrimSpace(cleaned[:i])
		}
		count++
	}
	return cleaned
}
