package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"latin case and accent", "  Café   AU lait ", "cafe au lait"},
		{"final letters", "שלום ביטוח דירה מקיף", "שלומ ביטוח דירה מקיפ"},
		{"all five finals", "ך ם ן ף ץ", "כ מ נ פ צ"},
		{"niqqud stripped", "שָׁלוֹם", "שלומ"},
		{"presentation form", "שׁמש", "שמש"},
		{"collapse inner whitespace", "מה\t\tההבדל\n\nבין", "מה ההבדל בינ"},
		{"invalid utf8 dropped", "abc\xffdef", "abcdef"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Café", "שָׁלוֹם  עולם", "מה ההבדל בין ביטוח מבנה לתכולה?", "İstanbul", "ÅNGSTRÖM  ",
		"כמה עולה ביטוח דירה בתל אביב?", "אַדָם",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalize_Equivalences(t *testing.T) {
	assert.Equal(t, Normalize("cafe"), Normalize("Café"))
	assert.Equal(t, Normalize("שלומ"), Normalize("שלום"))
	assert.Equal(t, Normalize("שלום"), Normalize("שָׁלוֹם"))
	assert.Equal(t, Normalize("é"), Normalize("é"))
}

func TestFoldFinalForms(t *testing.T) {
	assert.Equal(t, "כספ", FoldFinalForms("כסף"))
	assert.Equal(t, "Hello", FoldFinalForms("Hello"))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"מה", "ההבדל", "בינ", "מבנה", "לתכולה"}, Tokens("מה ההבדל בין מבנה, לתכולה?"))
	assert.Empty(t, Tokens("?!"))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.InDelta(t, 0.0, Jaccard([]string{"a"}, []string{"b"}), 1e-9)
	assert.InDelta(t, 1.0, Jaccard(nil, nil), 1e-9)
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "a", "b"}, []string{"a", "b"}), 1e-9)
}
