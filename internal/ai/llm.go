package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bankline/complaints/internal/models"
)

var readinessPrompt = `You check whether a bank complaint conversation is ready to be registered.
Extract the complaint description, the desired resolution and any additional details that would help the support team.
Set isReady to true only when all of them are present, the assistant has shown the customer a summary, and the customer has clearly agreed to go ahead (for example "yes", "correct", "proceed", "submit", "confirm", "looks good", "go ahead").
If the customer is still adding information, asking questions or correcting something, isReady is false.
Reply with one JSON object: {"description": string, "desiredResolution": string, "additionalDetails": string, "isReady": boolean}.`

var categoryPrompt = `You categorize bank complaints and judge customer sentiment.
Pick exactly one category from: ` + strings.Join(models.Categories, "; ") + `.
Pick exactly one sentiment from: negative, neutral, positive. Judge the customer's emotional tone, not the severity of the issue.
Give confidences between 0 and 1 and a one-sentence reasoning.
Reply with one JSON object: {"category": string, "confidence": number, "reasoning": string, "sentiment": string, "sentimentConfidence": number}.`

type readinessReply struct {
	Description       string `json:"description"`
	DesiredResolution string `json:"desiredResolution"`
	AdditionalDetails string `json:"additionalDetails"`
	IsReady           bool   `json:"isReady"`
}

type categoryReply struct {
	Category            string  `json:"category" validate:"required"`
	Confidence          float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning           string  `json:"reasoning"`
	Sentiment           string  `json:"sentiment" validate:"required,oneof=negative neutral positive"`
	SentimentConfidence float64 `json:"sentimentConfidence" validate:"gte=0,lte=1"`
}

// LLMClassifier asks a chat completion model for structured JSON answers.
// Every failure comes back wrapped in ErrUnavailable.
type LLMClassifier struct {
	Assistant Assistant
	validate  *validator.Validate
}

func NewLLMClassifier(a Assistant) *LLMClassifier {
	return &LLMClassifier{Assistant: a, validate: validator.New()}
}

func (c *LLMClassifier) CheckReadiness(ctx context.Context, transcript []ChatMessage) (Readiness, error) {
	var reply readinessReply
	if err := c.ask(ctx, readinessPrompt, transcript, &reply); err != nil {
		return Readiness{}, err
	}
	out := Readiness{IsReady: reply.IsReady}
	out.Fields.Description = nonBlank(reply.Description)
	out.Fields.DesiredResolution = nonBlank(reply.DesiredResolution)
	out.Fields.AdditionalDetails = nonBlank(reply.AdditionalDetails)
	if out.IsReady && out.Fields.Description == nil {
		out.IsReady = false
	}
	return out, nil
}

func (c *LLMClassifier) Categorize(ctx context.Context, transcript []ChatMessage) (Categorization, error) {
	var reply categoryReply
	if err := c.ask(ctx, categoryPrompt, transcript, &reply); err != nil {
		return Categorization{}, err
	}
	if c.validate != nil {
		if err := c.validate.Struct(reply); err != nil {
			return Categorization{}, fmt.Errorf("%w: invalid categorization: %v", ErrUnavailable, err)
		}
	}
	category, ok := models.NormalizeCategory(reply.Category)
	if !ok {
		category = models.DefaultCategory
	}
	return Categorization{
		Category:            category,
		Confidence:          reply.Confidence,
		Reasoning:           reply.Reasoning,
		Sentiment:           reply.Sentiment,
		SentimentConfidence: reply.SentimentConfidence,
	}, nil
}

func (c *LLMClassifier) ask(ctx context.Context, system string, transcript []ChatMessage, out any) error {
	if c.Assistant == nil {
		return fmt.Errorf("%w: no assistant configured", ErrUnavailable)
	}
	prompt := ChatMessage{Role: "user", Content: "Conversation context:\n" + FormatTranscript(transcript)}
	answer, err := c.Assistant.Ask(ctx, system, []ChatMessage{prompt})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err := json.Unmarshal([]byte(stripFences(answer)), out); err != nil {
		return fmt.Errorf("%w: malformed reply: %v", ErrUnavailable, err)
	}
	return nil
}

// stripFences removes a ```json ... ``` wrapper some models add.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func nonBlank(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
