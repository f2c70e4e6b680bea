package auth

import (
	"strings"
	"unicode"
)

const (
	maxNameLen  = 20
	maxMsgLen   = 120
	maxURLLen   = 200
	maxGlyphLen = 8
)

// SanitizeName cleans a player name: printable runes only, an allow-list of
// letters, digits and a few separators, trimmed to 20 runes.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if !unicode.IsPrint(r) {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || isNameSeparator(r) {
			b.WriteRune(r)
		}
	}
	return truncateRunes(strings.TrimSpace(b.String()), maxNameLen)
}

func isNameSeparator(r rune) bool {
	switch r {
	case '_', '-', '.', ' ', '·':
		return true
	}
	return false
}

// SanitizeMessage cleans a chat or note message: control characters and
// angle brackets removed, trimmed to max runes. A non-positive max uses the
// default of 120.
func SanitizeMessage(msg string, max int) string {
	if max <= 0 {
		max = maxMsgLen
	}
	var b strings.Builder
	for _, r := range msg {
		if !unicode.IsPrint(r) || r == '<' || r == '>' {
			continue
		}
		b.WriteRune(r)
	}
	return truncateRunes(strings.TrimSpace(b.String()), max)
}

// SanitizeGlyph cleans a seat display glyph. Emoji are fine, including
// multi-rune joiner sequences; markup and control characters are not.
func SanitizeGlyph(glyph string) string {
	var b strings.Builder
	for _, r := range glyph {
		if r != '‍' && (!unicode.IsPrint(r) || r == '<' || r == '>' || r == '&') {
			continue
		}
		b.WriteRune(r)
	}
	return truncateRunes(strings.TrimSpace(b.String()), maxGlyphLen)
}

// SanitizeURL accepts only http/https URLs, trimmed to 200 bytes.
// Anything else comes back empty.
func SanitizeURL(url string) string {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return ""
	}
	if len(url) > maxURLLen {
		return url[:maxURLLen]
	}
	return url
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
