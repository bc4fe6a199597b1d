// Package normalize derives the lookup key used by every learned-pattern
// table. Two descriptions with the same key are the same pattern everywhere
// in the engine.
//
// The output of Description is persisted inside pattern records, so its
// behaviour is a versioned contract: any change must bump Version and stored
// patterns must be re-keyed (see patterns.Store.Rekey).
package normalize

import (
	"strings"
	"unicode"
)

// Version identifies the current key-derivation rules.
const Version = 1

// minNoiseDigits is the shortest all-digit token treated as a reference
// number rather than meaningful text.
const minNoiseDigits = 4

// Description lower-cases s, turns every non-alphanumeric rune into a
// separator, drops noise tokens (reference numbers and masked account
// numbers) and collapses whitespace. It never fails.
func Description(s string) string {
	if s == "" {
		return ""
	}

	tokens := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	kept := tokens[:0]
	for _, tok := range tokens {
		if isNoise(tok) {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

// Contains reports whether the normalized description contains the
// normalized pattern on token boundaries.
func Contains(description, pattern string) bool {
	if pattern == "" {
		return false
	}
	return strings.Contains(" "+description+" ", " "+pattern+" ")
}

func isNoise(tok string) bool {
	if len(tok) >= minNoiseDigits && allDigits(tok) {
		return true
	}
	// masked account numbers such as xxxx1234 or xx5678
	if strings.HasPrefix(tok, "xx") {
		rest := strings.TrimLeft(tok, "x")
		return rest == "" || allDigits(rest)
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
