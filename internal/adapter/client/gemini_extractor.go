package client

import (
	"context"
	"encoding/json"
	"strings"

	"insurebot-core/internal/domain/entity"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const extractInstruction = `Extract facts about the user from the message as a flat JSON object.
Keys: "first_name" (string), "city" (string, in the language of the message), "home_value" (number, in shekels).
Omit keys that are not stated. Do not guess and do not explain.
Example: "קוראים לי דנה ואנחנו גרים ברמת גן, הדירה שווה 2.5 מיליון" -> {"first_name": "דנה", "city": "רמת גן", "home_value": 2500000}`

// GeminiExtractor asks the model for profile facts the regex extractor
// cannot see. Failures yield an empty patch.
type GeminiExtractor struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiExtractor(client *genai.Client, model string, logger *zap.Logger) *GeminiExtractor {
	return &GeminiExtractor{client: client, model: model, logger: logger.Named("extractor")}
}

func (e *GeminiExtractor) ExtractProfile(ctx context.Context, text string) entity.ProfilePatch {
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(extractInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		e.logger.Warn("profile extraction failed", zap.Error(err))
		return entity.ProfilePatch{}
	}
	return parseProfileFacts(resp.Text())
}

type extractedFacts struct {
	FirstName string  `json:"first_name"`
	City      string  `json:"city"`
	HomeValue float64 `json:"home_value"`
}

func parseProfileFacts(raw string) entity.ProfilePatch {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")

	var f extractedFacts
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &f); err != nil {
		return entity.ProfilePatch{}
	}
	var p entity.ProfilePatch
	if name := strings.TrimSpace(f.FirstName); name != "" {
		p.FirstName = &name
	}
	if city := strings.TrimSpace(f.City); city != "" {
		p.City = &city
	}
	if f.HomeValue > 0 {
		v := int64(f.HomeValue)
		p.HomeValue = &v
	}
	return p
}
