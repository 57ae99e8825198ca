package util

import (
	"os"
	"regexp"
	"strings"
)

var winEnvRe = regexp.MustCompile(`%([A-Za-z0-9_]+)%`)

// ExpandEnvUniversal expands both Unix-style ($VAR, ${VAR}) and Windows-style
// (%VAR%) environment variables. Undefined variables expand to the empty string.
func ExpandEnvUniversal(s string) string {
	unixExpanded := os.ExpandEnv(s)
	return winEnvRe.ReplaceAllStringFunc(unixExpanded, func(match string) string {
		varName := match[1 : len(match)-1]
		if value, ok := os.LookupEnv(varName); ok {
			return value
		}
		return ""
	})
}

// Snippet returns a short prefix of a byte slice, useful for logging.
func Snippet(b []byte) string {
	const maxLen = 200
	s := string(b)
	if len(s) > maxLen {
		// Cut on rune boundaries to avoid splitting multi-byte characters.
		runes := []rune(s)
		if len(runes) > maxLen {
			return string(runes[:maxLen]) + "..."
		}
	}
	return s
}

// LooksLikeJSON performs a cheap check for a string that starts and ends with
// JSON object or array delimiters. It does not validate the structure.
func LooksLikeJSON(s string) bool {
	trimmed := strings.TrimSpace(s)
	return (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"))
}
