package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/bankline/complaints/internal/models"
)

// ErrUnavailable marks a classifier call that failed or timed out.
var ErrUnavailable = errors.New("classifier unavailable")

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

type Readiness struct {
	IsReady bool
	Fields  models.ComplaintFields
}

type Categorization struct {
	Category            string
	Confidence          float64
	Reasoning           string
	Sentiment           string
	SentimentConfidence float64
}

// ReadinessChecker decides whether a draft conversation has gathered enough
// to be submitted.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context, transcript []ChatMessage) (Readiness, error)
}

type Categorizer interface {
	Categorize(ctx context.Context, transcript []ChatMessage) (Categorization, error)
}

// Classifier is both capabilities, as every implementation here provides.
type Classifier interface {
	ReadinessChecker
	Categorizer
}

// FormatTranscript renders "role: content" lines.
func FormatTranscript(transcript []ChatMessage) string {
	var b strings.Builder
	for i, m := range transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
	}
	return b.String()
}
