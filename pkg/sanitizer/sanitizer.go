package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	eventAttrRe = regexp.MustCompile(`(?i)\s*on\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsProtoRe   = regexp.MustCompile(`(?i)javascript\s*:`)
	htmlTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	multiWSRe   = regexp.MustCompile(`\s{2,}`)
)

// StripScriptTags removes <script> and <style> blocks including their content.
func StripScriptTags(s string) string {
	s = scriptTagRe.ReplaceAllString(s, "")
	return styleTagRe.ReplaceAllString(s, "")
}

// StripEventHandlers removes inline on* event handlers and javascript: protocols.
func StripEventHandlers(s string) string {
	s = eventAttrRe.ReplaceAllString(s, "")
	return jsProtoRe.ReplaceAllString(s, "")
}

// StripTags removes all remaining HTML tags, keeping their text content.
func StripTags(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

// CleanText strips executable markup and tags from notification content.
// Script/style blocks are removed with their bodies first so their content
// never leaks into the plain text, then remaining tags are unwrapped.
func CleanText(s string) string {
	s = StripScriptTags(s)
	s = StripEventHandlers(s)
	s = StripTags(s)
	s = StripControlChars(s)
	s = multiWSRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StripControlChars removes non-printable control characters except newlines and tabs.
func StripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Truncate shortens s to at most max runes, appending no ellipsis.
// Rune-aware so multi-byte content is never cut mid-character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
