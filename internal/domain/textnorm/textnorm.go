// Package textnorm canonicalizes user and corpus text so that embeddings and
// keyword rules see the same form of a word regardless of diacritics, final
// letter forms, case or spacing.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var finalForms = map[rune]rune{
	'ך': 'כ',
	'ם': 'מ',
	'ן': 'נ',
	'ף': 'פ',
	'ץ': 'צ',
}

// Normalize runs the fixed pipeline: NFC, lowercase, strip combining marks,
// fold final letters, collapse whitespace, trim. The order matters: the
// corpus was embedded with exactly this sequence.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")
	text = norm.NFC.String(text)
	text = strings.ToLower(text)
	text = stripMarks(text)
	text = FoldFinalForms(text)
	return strings.Join(strings.Fields(text), " ")
}

// stripMarks removes Mn runes. Precomposed letters are decomposed first so
// "é" loses its accent the same way a niqqud point is dropped, then the
// result is recomposed.
func stripMarks(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// FoldFinalForms maps the five Hebrew final letters to their standard form.
func FoldFinalForms(text string) string {
	return strings.Map(func(r rune) rune {
		if std, ok := finalForms[r]; ok {
			return std
		}
		return r
	}, text)
}

// Tokens returns the normalized words of text, split on anything that is not
// a letter or digit.
func Tokens(text string) []string {
	return strings.FieldsFunc(Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Jaccard is the order-independent word overlap |A∩B| / |A∪B| of two token
// lists. Two empty lists are identical.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}
