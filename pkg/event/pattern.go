package event

import "strings"

// MatchPattern reports whether a subscription pattern matches an event key.
// Patterns and keys are dot-delimited; "*" matches exactly one segment, so
// "notification.*" matches "notification.created" but not "user.login".
// Segment counts must agree, everything else is a literal comparison.
func MatchPattern(pattern, key string) bool {
	if pattern == "" || key == "" {
		return false
	}
	if pattern == key {
		return true
	}

	pparts := strings.Split(pattern, ".")
	kparts := strings.Split(key, ".")
	if len(pparts) != len(kparts) {
		return false
	}

	for i, pp := range pparts {
		if pp == "*" {
			continue
		}
		if pp != kparts[i] {
			return false
		}
	}
	return true
}

// MatchAny reports whether any of the patterns matches the event key.
// An empty pattern set matches nothing.
func MatchAny(patterns []string, key string) bool {
	for _, p := range patterns {
		if MatchPattern(p, key) {
			return true
		}
	}
	return false
}

// ValidPattern reports whether a pattern is well-formed: non-empty,
// dot-delimited, each segment either "*" or a lowercase token.
func ValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	for _, seg := range strings.Split(pattern, ".") {
		if seg == "*" {
			continue
		}
		if seg == "" || seg != strings.ToLower(seg) || strings.ContainsAny(seg, " *") {
			return false
		}
	}
	return true
}
