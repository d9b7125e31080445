package intent

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"insurebot-core/internal/domain/entity"
	"insurebot-core/internal/domain/textnorm"
)

// shortInterrogatives are one-word questions that only make sense as a
// continuation of the previous exchange.
var shortInterrogatives = []string{"למה", "איך", "מתי", "באמת", "כלומר", "ולמה", "why", "how", "really"}

// FollowUpDetector decides whether a message continues the previous exchange.
type FollowUpDetector struct {
	continuation Matcher
}

func NewFollowUpDetector(rs RuleSet) (*FollowUpDetector, error) {
	m, err := compileMatcher(rs.FollowUp)
	if err != nil {
		return nil, fmt.Errorf("follow-up: %w", err)
	}
	return &FollowUpDetector{continuation: m}, nil
}

var defaultFollowUp = sync.OnceValue(func() *FollowUpDetector {
	d, err := NewFollowUpDetector(DefaultRuleSet())
	if err != nil {
		panic(err)
	}
	return d
})

func DefaultFollowUpDetector() *FollowUpDetector {
	return defaultFollowUp()
}

// IsFollowUp is a heuristic. Without history there is nothing to follow up
// on. Ambiguous one-word questions lean towards follow-up.
func (d *FollowUpDetector) IsFollowUp(text string, history []entity.ConversationTurn) bool {
	if len(history) == 0 {
		return false
	}
	normalized := textnorm.Normalize(text)
	if normalized == "" {
		return false
	}
	if d.continuation.Match(normalized) {
		return true
	}
	tokens := textnorm.Tokens(normalized)
	if len(tokens) != 1 {
		return false
	}
	if slices.Contains(shortInterrogatives, tokens[0]) {
		return true
	}
	return strings.HasSuffix(normalized, "?")
}
