package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func completionServer(t *testing.T, status int, content string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body completionRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != "system" {
			t.Errorf("unexpected messages %+v", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLMClassifierReadiness(t *testing.T) {
	var hits int32
	reply := "```json\n{\"description\":\"card blocked abroad\",\"desiredResolution\":\"unblock it\",\"additionalDetails\":\" \",\"isReady\":true}\n```"
	srv := completionServer(t, http.StatusOK, reply, &hits)
	c := NewLLMClassifier(&OpenAICompatAssistant{BaseURL: srv.URL, Model: "test", JSONMode: true})

	transcript := []ChatMessage{{Role: "user", Content: "my card is blocked"}}
	got, err := c.CheckReadiness(context.Background(), transcript)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !got.IsReady || got.Fields.Description == nil || *got.Fields.Description != "card blocked abroad" {
		t.Fatalf("unexpected readiness %+v", got)
	}
	if got.Fields.AdditionalDetails != nil {
		t.Fatalf("blank details should stay nil")
	}

	if _, err := c.CheckReadiness(context.Background(), transcript); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected cached second call, server saw %d", hits)
	}
}

func TestLLMClassifierCategorize(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusOK, `{"category":"cards","confidence":0.8,"reasoning":"card issue","sentiment":"negative","sentimentConfidence":0.7}`, &hits)
	c := NewLLMClassifier(&OpenAICompatAssistant{BaseURL: srv.URL, Model: "test"})
	got, err := c.Categorize(context.Background(), []ChatMessage{{Role: "user", Content: "card"}})
	if err != nil {
		t.Fatalf("categorize: %v", err)
	}
	if got.Category != "Cards" || got.Sentiment != "negative" {
		t.Fatalf("unexpected categorization %+v", got)
	}
}

func TestLLMClassifierRejectsInvalidSentiment(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusOK, `{"category":"Cards","confidence":0.8,"sentiment":"furious","sentimentConfidence":0.7}`, &hits)
	c := NewLLMClassifier(&OpenAICompatAssistant{BaseURL: srv.URL, Model: "test"})
	if _, err := c.Categorize(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestLLMClassifierRateLimited(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusTooManyRequests, "", &hits)
	c := NewLLMClassifier(&OpenAICompatAssistant{BaseURL: srv.URL, Model: "test"})
	_, err := c.CheckReadiness(context.Background(), nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	var rl RateLimitError
	if !errors.As(err, &rl) || rl.RetryAfter != 7*time.Second {
		t.Fatalf("expected rate limit with retry-after, got %v", err)
	}
}

func TestLLMClassifierMalformedReply(t *testing.T) {
	var hits int32
	srv := completionServer(t, http.StatusOK, "I think the customer is ready", &hits)
	c := NewLLMClassifier(&OpenAICompatAssistant{BaseURL: srv.URL, Model: "test"})
	if _, err := c.CheckReadiness(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestAssistantRequiresConfig(t *testing.T) {
	c := NewLLMClassifier(&OpenAICompatAssistant{})
	if _, err := c.CheckReadiness(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
