package usecase

import (
	_ "embed"
	"fmt"
	"strings"

	"insurebot-core/internal/domain/entity"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// Templates holds the fixed texts of the reply composer with the agent and
// agency names already substituted.
type Templates struct {
	Persona                  string                   `yaml:"persona"`
	Intro                    string                   `yaml:"intro"`
	Greeting                 string                   `yaml:"greeting"`
	GreetingNamed            string                   `yaml:"greeting_named"`
	Apology                  string                   `yaml:"apology"`
	Unanswered               string                   `yaml:"unanswered"`
	ErasureDone              string                   `yaml:"erasure_done"`
	ErasureFailed            string                   `yaml:"erasure_failed"`
	FollowUpInstruction      string                   `yaml:"follow_up_instruction"`
	MergeInstruction         string                   `yaml:"merge_instruction"`
	UnconditionedInstruction string                   `yaml:"unconditioned_instruction"`
	CTA                      map[entity.Intent]string `yaml:"cta"`
}

// LoadTemplates parses the embedded template table for the given agent.
func LoadTemplates(agent, agency string) (Templates, error) {
	return ParseTemplates(templatesYAML, agent, agency)
}

func ParseTemplates(data []byte, agent, agency string) (Templates, error) {
	var t Templates
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Templates{}, fmt.Errorf("parse templates: %w", err)
	}
	r := strings.NewReplacer("{agent}", agent, "{agency}", agency)
	for _, s := range []*string{
		&t.Persona, &t.Intro, &t.Greeting, &t.GreetingNamed, &t.Apology, &t.Unanswered,
		&t.ErasureDone, &t.ErasureFailed, &t.FollowUpInstruction, &t.MergeInstruction,
		&t.UnconditionedInstruction,
	} {
		*s = strings.TrimSpace(r.Replace(*s))
	}
	for k, v := range t.CTA {
		t.CTA[k] = strings.TrimSpace(r.Replace(v))
	}
	if t.Apology == "" || t.Greeting == "" || t.Persona == "" {
		return Templates{}, fmt.Errorf("templates: persona, greeting and apology are required")
	}
	return t, nil
}

// GreetingFor renders the greeting, addressing the user by name when known.
func (t Templates) GreetingFor(p entity.UserProfile) string {
	if p.FirstName != "" && t.GreetingNamed != "" {
		return strings.ReplaceAll(t.GreetingNamed, "{name}", p.FirstName)
	}
	return t.Greeting
}

// CTAFor returns the call-to-action for an intent, or "" when none applies.
// Price objections, follow-ups and greetings never get one.
func (t Templates) CTAFor(intent entity.Intent) string {
	switch intent {
	case entity.IntentPricePushback, entity.IntentFollowUp, entity.IntentGreeting:
		return ""
	}
	return t.CTA[intent]
}
