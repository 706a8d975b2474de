// Package syllable splits Spanish words into syllables for paced read-back.
//
// The rules are a fixed heuristic: vowels close a syllable unless followed by
// another vowel, two or three adjacent vowels are merged, and the clusters
// rr, ll and ch are never split. The output is meant for speech pacing, not
// for orthographic hyphenation.
package syllable

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Separator is the speech-markup pause inserted between syllables.
const Separator = `<break time="500ms"/>`

// ErrInvalidInput is returned when the word is missing, not text, or blank.
var ErrInvalidInput = errors.New("invalid input")

var doubleConsonants = map[string]struct{}{
	"rr": {},
	"ll": {},
	"ch": {},
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'á', 'é', 'í', 'ó', 'ú', 'ü':
		return true
	}
	return false
}

func isDoubleConsonant(cur, next rune) bool {
	if next == 0 {
		return false
	}
	_, ok := doubleConsonants[string([]rune{cur, next})]
	return ok
}

// Normalize lower-cases the word and trims surrounding whitespace.
func Normalize(word string) string {
	return strings.TrimFunc(strings.ToLower(word), isTrimmable)
}

func isTrimmable(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// Split returns the syllables of word in order. Concatenating them yields
// Normalize(word).
func Split(word string) ([]string, error) {
	w := []rune(Normalize(word))
	if len(w) == 0 {
		return nil, fmt.Errorf("%w: word is empty", ErrInvalidInput)
	}

	at := func(i int) rune {
		if i < len(w) {
			return w[i]
		}
		return 0
	}

	var (
		syllables []string
		buf       []rune
	)
	emit := func() {
		syllables = append(syllables, string(buf))
		buf = buf[:0]
	}

	for i := 0; i < len(w); i++ {
		cur, next, next2 := w[i], at(i+1), at(i+2)
		buf = append(buf, cur)

		if isDoubleConsonant(cur, next) {
			buf = append(buf, next)
			i++
		}

		if isVowel(cur) {
			switch {
			case !isVowel(next):
				emit()
			case isVowel(next2):
				buf = append(buf, next, next2)
				emit()
				i += 2
			default:
				buf = append(buf, next)
				emit()
				i++
			}
		}

		if i == len(w)-1 && len(buf) > 0 {
			emit()
		}
	}

	return syllables, nil
}

// SplitValue is Split for values decoded from loosely typed payloads. Nil,
// non-string and nil *string values are rejected with ErrInvalidInput.
func SplitValue(v any) ([]string, error) {
	switch word := v.(type) {
	case string:
		return Split(word)
	case *string:
		if word == nil {
			return nil, fmt.Errorf("%w: word is missing", ErrInvalidInput)
		}
		return Split(*word)
	case nil:
		return nil, fmt.Errorf("%w: word is missing", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: expected text, got %T", ErrInvalidInput, v)
	}
}

// Join renders syllables as a single string separated by Separator.
func Join(syllables []string) string {
	return strings.Join(syllables, Separator)
}

// Syllabify splits word and joins the result with Separator.
func Syllabify(word string) (string, error) {
	syllables, err := Split(word)
	if err != nil {
		return "", err
	}
	return Join(syllables), nil
}
