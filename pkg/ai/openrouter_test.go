package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenRouterProvider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := NewOpenRouter(OpenRouterConfig{
		APIKey:       "test-key",
		Model:        "openai/gpt-4o-mini",
		BaseURL:      srv.URL,
		SystemPrompt: "be brief",
	})
	if err != nil {
		t.Fatalf("NewOpenRouter failed: %v", err)
	}
	return p
}

func completionResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":"` + content + `"}}]}`
}

func TestNewOpenRouter(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		if _, err := NewOpenRouter(OpenRouterConfig{Model: "m"}); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("expected ErrNotConfigured, got %v", err)
		}
	})

	t.Run("requires model", func(t *testing.T) {
		if _, err := NewOpenRouter(OpenRouterConfig{APIKey: "k"}); err == nil {
			t.Error("expected error for missing model")
		}
	})
}

func TestComplete(t *testing.T) {
	t.Run("returns assistant reply", func(t *testing.T) {
		var gotReq chatRequest
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected auth header: %s", auth)
			}
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("failed to decode request: %v", err)
			}
			_, _ = w.Write([]byte(completionResponse("hello there")))
		})

		reply, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
		if err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if reply != "hello there" {
			t.Errorf("unexpected reply: %s", reply)
		}

		// System prompt is prepended ahead of the user turn
		if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
			t.Errorf("expected system prompt first, got %+v", gotReq.Messages)
		}
	})

	t.Run("maps status codes", func(t *testing.T) {
		cases := []struct {
			status int
			want   error
		}{
			{http.StatusUnauthorized, ErrInvalidAPIKey},
			{http.StatusPaymentRequired, ErrInsufficientCredits},
			{http.StatusTooManyRequests, ErrRateLimited},
		}
		for _, tc := range cases {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := p.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		}
	})

	t.Run("empty choices rejected", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		})
		if _, err := p.Complete(context.Background(), nil); err == nil {
			t.Error("expected error for empty choices")
		}
	})

	t.Run("context cancellation aborts request", func(t *testing.T) {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := p.Complete(ctx, []Message{{Role: "user", Content: "hi"}}); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestTestConnection(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completionResponse("pong")))
	})

	if err := p.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection failed: %v", err)
	}
}

func TestMockProvider(t *testing.T) {
	m := &MockProvider{Reply: "canned"}

	reply, err := m.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "canned" {
		t.Errorf("unexpected reply: %s", reply)
	}
	if len(m.Calls) != 1 {
		t.Errorf("expected 1 recorded call, got %d", len(m.Calls))
	}

	m.Err = ErrRateLimited
	if _, err := m.Complete(context.Background(), nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
}
