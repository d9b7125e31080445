// Package intent holds the conversational rules of the agent: the ordered
// intent table, follow-up detection, sub-question splitting, the erasure
// command and profile fact extraction. Everything here is pure and safe for
// concurrent use once built.
package intent

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/textnorm"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// priorityOrder is the fixed precedence of the classifier. A rule table must
// list its rules in this order; default is implicit and never listed.
var priorityOrder = []entity.Intent{
	entity.IntentGreeting,
	entity.IntentClose,
	entity.IntentFrustration,
	entity.IntentPricePushback,
	entity.IntentLeadGen,
	entity.IntentFollowUp,
	entity.IntentInfoGathering,
}

type MatcherSpec struct {
	Phrases  []string `yaml:"phrases"`
	Patterns []string `yaml:"patterns"`
}

type RuleSpec struct {
	Intent      entity.Intent `yaml:"intent"`
	MatcherSpec `yaml:",inline"`
}

type RuleSet struct {
	InsuranceKeywords []string    `yaml:"insurance_keywords"`
	Rules             []RuleSpec  `yaml:"rules"`
	FollowUp          MatcherSpec `yaml:"follow_up"`
	Erasure           MatcherSpec `yaml:"erasure"`
}

// ParseRuleSet decodes a YAML rule table and checks its ordering.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("failed to parse intent rules: %w", err)
	}
	if err := rs.validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

var defaultRuleSet = sync.OnceValues(func() (RuleSet, error) {
	return ParseRuleSet(defaultRulesYAML)
})

// DefaultRuleSet returns the embedded rule table, parsed once.
func DefaultRuleSet() RuleSet {
	rs, err := defaultRuleSet()
	if err != nil {
		panic(err)
	}
	return rs
}

func (rs RuleSet) validate() error {
	next := 0
	for i, r := range rs.Rules {
		pos := indexOf(priorityOrder, r.Intent)
		if pos < 0 {
			return fmt.Errorf("rule %d: unknown or unlisted intent %q", i, r.Intent)
		}
		if pos < next {
			return fmt.Errorf("rule %d: intent %q is out of priority order", i, r.Intent)
		}
		next = pos + 1
		if len(r.Phrases) == 0 && len(r.Patterns) == 0 {
			return fmt.Errorf("rule %d: intent %q has no phrases or patterns", i, r.Intent)
		}
	}
	return nil
}

func indexOf(list []entity.Intent, v entity.Intent) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

// Matcher is a compiled set of phrases and patterns over normalized text.
type Matcher struct {
	res []*regexp.Regexp
}

const (
	boundaryStart = `(?:^|[^\p{L}\p{N}])`
	boundaryEnd   = `(?:$|[^\p{L}\p{N}])`
)

func compileMatcher(spec MatcherSpec) (Matcher, error) {
	var m Matcher
	for _, p := range spec.Phrases {
		phrase := textnorm.Normalize(p)
		if phrase == "" {
			continue
		}
		re, err := regexp.Compile(boundaryStart + regexp.QuoteMeta(phrase) + boundaryEnd)
		if err != nil {
			return Matcher{}, fmt.Errorf("phrase %q: %w", p, err)
		}
		m.res = append(m.res, re)
	}
	for _, p := range spec.Patterns {
		re, err := regexp.Compile(textnorm.FoldFinalForms(p))
		if err != nil {
			return Matcher{}, fmt.Errorf("pattern %q: %w", p, err)
		}
		m.res = append(m.res, re)
	}
	return m, nil
}

// Match expects text that already went through textnorm.Normalize.
func (m Matcher) Match(normalized string) bool {
	for _, re := range m.res {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

func (m Matcher) Len() int { return len(m.res) }

func normalizeAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := textnorm.Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
