package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mrsingh-rishi/transcriber/model"
)

func TestParagraphs(t *testing.T) {
	got := Paragraphs("one\n\n  two  \n\n\n\nthree")
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[1].Tag != "p" || got[1].Children[0] != "two" {
		t.Fatalf("node = %+v", got[1])
	}
}

func TestPublish(t *testing.T) {
	var req createPageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/createPage" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"url":"https://telegra.ph/Weekly-sync-01-01"}}`))
	}))
	defer srv.Close()

	tg := NewTelegraph(srv.URL, "token")
	url, err := tg.Publish(context.Background(), "Ann", model.ArticleData{Title: "Weekly sync", Content: "a\n\nb"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if url != "https://telegra.ph/Weekly-sync-01-01" {
		t.Fatalf("url = %q", url)
	}
	if req.AccessToken != "token" || req.AuthorName != "Ann" || len(req.Content) != 2 {
		t.Fatalf("request = %+v", req)
	}
}

func TestPublishMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	_, err := NewTelegraph(srv.URL, "token").Publish(context.Background(), "", model.ArticleData{Title: "t", Content: "c"})
	if !errors.Is(err, ErrNoPageURL) {
		t.Fatalf("error = %v, want ErrNoPageURL", err)
	}
}

func TestPublishAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"ACCESS_TOKEN_INVALID"}`))
	}))
	defer srv.Close()

	_, err := NewTelegraph(srv.URL, "bad").Publish(context.Background(), "", model.ArticleData{Title: "t", Content: "c"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestPublishCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTelegraph("http://127.0.0.1:1", "").Publish(ctx, "", model.ArticleData{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
