package intent

import (
	"fmt"
	"sync"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/textnorm"
)

type rule struct {
	intent  entity.Intent
	matcher Matcher
}

// Classifier maps a message onto exactly one Intent, first match wins.
type Classifier struct {
	rules             []rule
	insuranceKeywords []string
	erasure           Matcher
}

func NewClassifier(rs RuleSet) (*Classifier, error) {
	if err := rs.validate(); err != nil {
		return nil, err
	}
	c := &Classifier{insuranceKeywords: normalizeAll(rs.InsuranceKeywords)}
	for _, spec := range rs.Rules {
		m, err := compileMatcher(spec.MatcherSpec)
		if err != nil {
			return nil, fmt.Errorf("intent %s: %w", spec.Intent, err)
		}
		c.rules = append(c.rules, rule{intent: spec.Intent, matcher: m})
	}
	erasure, err := compileMatcher(rs.Erasure)
	if err != nil {
		return nil, fmt.Errorf("erasure: %w", err)
	}
	c.erasure = erasure
	return c, nil
}

var defaultClassifier = sync.OnceValue(func() *Classifier {
	c, err := NewClassifier(DefaultRuleSet())
	if err != nil {
		panic(err)
	}
	return c
})

// DefaultClassifier is built from the embedded rule table once per process.
func DefaultClassifier() *Classifier {
	return defaultClassifier()
}

// Detect classifies text. It never returns an empty Intent; unmatched and
// empty input fall through to IntentDefault.
func (c *Classifier) Detect(text string) entity.Intent {
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return entity.IntentDefault
	}
	for _, r := range c.rules {
		if r.intent == entity.IntentFrustration && c.MentionsInsurance(normalized) {
			// complaints about coverage are questions, not frustration
			continue
		}
		if r.matcher.Match(normalized) {
			return r.intent
		}
	}
	return entity.IntentDefault
}

// MentionsInsurance reports whether normalized text names an insurance term.
func (c *Classifier) MentionsInsurance(normalized string) bool {
	return containsAny(normalized, c.insuranceKeywords)
}

// IsErasure reports whether text is the data-erasure command.
func (c *Classifier) IsErasure(text string) bool {
	return c.erasure.Match(textnorm.Normalize(text))
}

// Intents lists the rule intents in priority order.
func (c *Classifier) Intents() []entity.Intent {
	out := make([]entity.Intent, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.intent
	}
	return out
}
