package intent

import (
	"regexp"
	"strings"

	"insurebot-core/internal/domain/textnorm"
)

// MaxSubQuestions caps the fan-out of one message.
const MaxSubQuestions = 5

var (
	// a question mark ends a clause; newlines and semicolons separate them
	clauseDelimiter = regexp.MustCompile(`[?？]+|[\n;]+`)
	// interrogative conjunctions that open a second question mid-sentence
	conjunctionSplit = regexp.MustCompile(`(?i)\s+(?:וגם|ובנוסף|וכן|and also|also,)\s+`)
)

// SplitQuestions breaks a message into its sub-questions, in order. Clauses
// without any word are dropped; a message that does not split is returned
// as a single element. Empty input yields nil.
func SplitQuestions(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parts []string
	last := 0
	for _, loc := range clauseDelimiter.FindAllStringIndex(text, -1) {
		clause := text[last:loc[0]]
		if strings.ContainsAny(text[loc[0]:loc[1]], "?？") {
			clause += "?"
		}
		parts = append(parts, clause)
		last = loc[1]
	}
	parts = append(parts, text[last:])

	var out []string
	for _, p := range parts {
		for _, piece := range splitConjunctions(p) {
			piece = strings.TrimSpace(piece)
			if len(textnorm.Tokens(piece)) == 0 {
				continue
			}
			out = append(out, piece)
		}
	}
	if len(out) == 0 {
		return []string{text}
	}
	if len(out) > MaxSubQuestions {
		// keep the tail together rather than dropping it
		tail := strings.Join(out[MaxSubQuestions-1:], " ")
		out = append(out[:MaxSubQuestions-1], tail)
	}
	return out
}

// splitConjunctions only splits when both sides carry at least two words, so
// "ביטוח מבנה וגם תכולה" stays one question.
func splitConjunctions(clause string) []string {
	locs := conjunctionSplit.FindAllStringIndex(clause, -1)
	if len(locs) == 0 {
		return []string{clause}
	}
	var out []string
	last := 0
	for _, loc := range locs {
		left := clause[last:loc[0]]
		right := clause[loc[1]:]
		if len(textnorm.Tokens(left)) < 2 || len(textnorm.Tokens(right)) < 2 {
			continue
		}
		out = append(out, left)
		last = loc[1]
	}
	return append(out, clause[last:])
}
