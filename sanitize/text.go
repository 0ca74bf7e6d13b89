// Package sanitize validates event types against an allow-list and scrubs
// untrusted payloads, URLs and tokens down to safe plain values.
package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	blockTags = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	anyTag    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Text reduces s to single-line plain text: invalid UTF-8, markup, control
// characters and angle brackets are removed, whitespace runs collapse to one
// space, and the result is trimmed and cut to at most max runes (max <= 0
// means unbounded).
func Text(s string, max int) string {
	if s == "" {
		return ""
	}
	s = strings.ToValidUTF8(s, "")
	s = blockTags.ReplaceAllString(s, "")
	s = anyTag.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case r == '\t' || r == '\n' || r == '\r':
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return Truncate(s, max)
}

// Truncate cuts s to at most max runes. Trailing whitespace left by the cut
// is trimmed.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
}

// Key normalizes a payload key to lowercase [a-z0-9_-], at most 64 bytes.
func Key(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
		if b.Len() == 64 {
			break
		}
	}
	return b.String()
}

// Token keeps the [A-Za-z0-9_-] characters of a client-supplied token, at
// most 64 of them.
func Token(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		}
		if b.Len() == 64 {
			break
		}
	}
	return b.String()
}

// URL cleans a page URL or referrer. Absolute http and https URLs and
// same-origin relative references (starting with "/", "?" or "#") are kept;
// other schemes and values with whitespace or control characters yield "".
// The result is cut to at most max bytes (max <= 0 means unbounded).
func URL(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ""
		}
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		if u.Host == "" {
			return ""
		}
	case u.Scheme == "" && u.Host == "" && strings.IndexAny(s[:1], "/?#") == 0:
	default:
		return ""
	}
	return cutURL(u.String(), max)
}

// cutURL cuts s to max bytes without leaving a partial percent escape or
// UTF-8 sequence behind.
func cutURL(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	s = s[:max]
	if i := strings.LastIndexByte(s, '%'); i >= 0 && i >= len(s)-2 {
		s = s[:i]
	}
	return strings.ToValidUTF8(s, "")
}
