package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultChunkRunes is the answer size above which answers are split.
const DefaultChunkRunes = 700

// a terminator only ends a sentence when whitespace or the end of text
// follows, so "2.5" and URLs stay whole
var sentence = regexp.MustCompile(`.+?(?:[.!?]+(?:\s+|$)|\n+|$)`)

// Chunk splits text on sentence boundaries into pieces of at most budget
// runes. A sentence longer than budget is cut between words. Text that
// fits is returned as its single chunk.
func Chunk(text string, budget int) []string {
	text = strings.TrimSpace(text)
	if budget <= 0 {
		budget = DefaultChunkRunes
	}
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	for _, s := range sentence.FindAllString(text, -1) {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		for _, piece := range splitLong(s, budget) {
			if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(piece) > budget {
				flush()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(piece)
		}
	}
	flush()
	return chunks
}

func splitLong(s string, budget int) []string {
	if utf8.RuneCountInString(s) <= budget {
		return []string{s}
	}
	var (
		out []string
		cur []string
		n   int
	)
	for _, w := range strings.Fields(s) {
		wn := utf8.RuneCountInString(w)
		if n > 0 && n+1+wn > budget {
			out = append(out, strings.Join(cur, " "))
			cur, n = nil, 0
		}
		if n > 0 {
			n++
		}
		cur = append(cur, w)
		n += wn
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
