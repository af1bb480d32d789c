package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseArticle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		title   string
		body    string
		wantErr bool
	}{
		{
			name:    "labelled",
			content: "Title: Go in production\n\nText: First paragraph.\n\nSecond paragraph.",
			title:   "Go in production",
			body:    "First paragraph.\n\nSecond paragraph.",
		},
		{
			name:    "unlabelled",
			content: "A title\n\nBody text",
			title:   "A title",
			body:    "Body text",
		},
		{name: "single block", content: "Title: only a title", wantErr: true},
		{name: "empty body", content: "Title: x\n\nText:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArticle(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedArticle) {
					t.Fatalf("error = %v, want ErrMalformedArticle", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArticle() error = %v", err)
			}
			if got.Title != tt.title || got.Content != tt.body {
				t.Fatalf("ParseArticle() = %+v", got)
			}
		})
	}
}

func TestWriteArticle(t *testing.T) {
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) == 1 {
			prompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Title: Weekly sync\n\nText: We talked."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("key", srv.URL+"/v1", "Write an article:", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	article, err := c.WriteArticle(context.Background(), "we talked")
	if err != nil {
		t.Fatalf("WriteArticle() error = %v", err)
	}
	if prompt != "Write an article: we talked" {
		t.Fatalf("prompt = %q", prompt)
	}
	if article.Title != "Weekly sync" || article.Content != "We talked." {
		t.Fatalf("article = %+v", article)
	}
}

func TestNewOpenAIClientValidation(t *testing.T) {
	if _, err := NewOpenAIClient("", "", "p", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewOpenAIClient("key", "", "p", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}
