package server

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

const (
	maxNameLen  = 24 // chatclient.MaxUsernameLen refuses longer names up front
	anonName    = "anon"
	nameDropped = "|,"
)

// Strict policy for usernames: no markup at all.
var namePolicy = bluemonday.StrictPolicy()

// SanitizeName turns a requested username into the name shown to everyone.
// Markup and frame delimiters are removed and the result is cut to 24 runes.
func SanitizeName(name string) string {
	plain := html.UnescapeString(namePolicy.Sanitize(html.UnescapeString(name)))
	plain = strings.Map(func(r rune) rune {
		if strings.ContainsRune(nameDropped, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, plain)
	plain = truncate(strings.TrimSpace(plain), maxNameLen)
	plain = strings.TrimSpace(plain)
	if plain == "" {
		return anonName
	}
	return plain
}

// sanitizeText removes control characters except tab and newline and limits
// the text to maxLen runes. Other Unicode, emoji included, is kept.
func sanitizeText(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(truncate(b.String(), maxLen))
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
