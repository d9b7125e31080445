package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"insurebot-core/internal/domain/entity"
)

var (
	namePattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])ו?(?:קוראים לי|שמי הוא|שמי|השם שלי הוא|השם שלי|my name is|call me)\s+([\p{L}'-]{2,20})`)
	cityPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])ו?(?:אני גר(?:ה)?|אנחנו גרים|גר(?:ה|ים|ות)?|מתגורר(?:ת|ים)?|i live in|we live in)\s+(?:ב-?\s?)?([\p{L}'"]+(?:[\s-][\p{L}'"]+)?)`)
	valueCue    = regexp.MustCompile(`(?i)(?:שווה|שווי|שוויה|worth|valued at|value)`)
	valueAmount = regexp.MustCompile(`(?i)(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)\s*(מיליון|מליון|אלף|million|k|m)?`)
)

// notNames guards against "שמי" style cues followed by a filler word.
var notNames = map[string]struct{}{
	"הוא": {}, "היא": {}, "זה": {}, "is": {}, "the": {},
}

// ExtractProfileFacts pulls first name, city and home value out of free
// text. Only the facts found are set in the returned patch.
func ExtractProfileFacts(text string) entity.ProfilePatch {
	var patch entity.ProfilePatch
	text = strings.TrimSpace(text)
	if text == "" {
		return patch
	}

	if m := namePattern.FindStringSubmatch(text); m != nil {
		if _, bad := notNames[strings.ToLower(m[1])]; !bad {
			name := m[1]
			patch.FirstName = &name
		}
	}

	if m := cityPattern.FindStringSubmatch(text); m != nil {
		city := trimCity(m[1])
		if city != "" {
			patch.City = &city
		}
	}

	if loc := valueCue.FindStringIndex(text); loc != nil {
		if v, ok := parseAmount(text[loc[1]:]); ok {
			patch.HomeValue = &v
		}
	}
	return patch
}

// trimCity drops a trailing word that starts a new clause ("חיפה ויש").
func trimCity(city string) string {
	fields := strings.Fields(strings.ReplaceAll(city, "-", " "))
	if len(fields) == 2 && (strings.HasPrefix(fields[1], "ו") || strings.EqualFold(fields[1], "and")) {
		fields = fields[:1]
	}
	return strings.Join(fields, " ")
}

func parseAmount(s string) (int64, bool) {
	m := valueAmount.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "מיליון", "מליון", "million", "m":
		n *= 1_000_000
	case "אלף", "k":
		n *= 1_000
	}
	if n > math.MaxInt64/2 {
		return 0, false
	}
	return int64(math.Round(n)), true
}
