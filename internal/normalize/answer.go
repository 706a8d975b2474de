// Package normalize folds spoken yes/no answers so accented and unaccented
// variants compare equal.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Reply is a classified yes/no answer
type Reply int

const (
	ReplyUnknown Reply = iota
	ReplyYes
	ReplyNo
)

func (r Reply) String() string {
	switch r {
	case ReplyYes:
		return "yes"
	case ReplyNo:
		return "no"
	default:
		return "unknown"
	}
}

// Answer lower-cases and trims s and strips combining diacritics ("Sí" -> "si").
func Answer(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Classify maps an answer to ReplyYes, ReplyNo or ReplyUnknown
func Classify(s string) Reply {
	switch Answer(s) {
	case "si":
		return ReplyYes
	case "no":
		return ReplyNo
	default:
		return ReplyUnknown
	}
}
