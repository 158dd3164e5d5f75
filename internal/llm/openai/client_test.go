package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/invoicehub/invoice-rpa/internal/common"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{Endpoint: srv.URL, APIKey: "test-key", Deployment: "gpt-4"}, nil)
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + strconvQuote(content) + `}}],"usage":{"total_tokens":42}}`
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestCompleteSuccess(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(completionBody(`  {"invoice_number":"2024/001"}  `)))
	}))
	defer srv.Close()

	out, err := newTestClient(srv).Complete(context.Background(), "you are an accountant", "validate this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"invoice_number":"2024/001"}` {
		t.Errorf("content = %q, want trimmed payload", out)
	}
	if gotPath != "/openai/deployments/gpt-4/chat/completions?api-version=2024-02-15-preview" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Errorf("api-key header = %q", gotKey)
	}
	if msgs, _ := gotBody["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v, want system + user", gotBody["messages"])
	}
	if _, ok := gotBody["response_format"]; !ok {
		t.Error("response_format missing for a system-prompted call")
	}
}

func TestCompleteBareUserPrompt(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(completionBody("0.85")))
	}))
	defer srv.Close()

	out, err := newTestClient(srv).Complete(context.Background(), "", "rate this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "0.85" {
		t.Errorf("content = %q", out)
	}
	if msgs, _ := gotBody["messages"].([]any); len(msgs) != 1 {
		t.Errorf("messages = %v, want user only", gotBody["messages"])
	}
	if _, ok := gotBody["response_format"]; ok {
		t.Error("response_format must be omitted without a system prompt")
	}
}

func TestCompleteRateLimitedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":"429"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Complete(context.Background(), "s", "u")
	if !errors.Is(err, common.ErrTransientService) {
		t.Fatalf("err = %v, want ErrTransientService", err)
	}
}

func TestCompleteServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Complete(context.Background(), "s", "u")
	if !errors.Is(err, common.ErrTransientService) {
		t.Fatalf("err = %v, want ErrTransientService", err)
	}
}

func TestCompleteAuthFailureIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, common.ErrTransientService) {
		t.Errorf("401 classified as transient: %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("status code not surfaced: %v", err)
	}
}

func TestCompleteConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := newTestClient(srv).Complete(context.Background(), "s", "u")
	if !errors.Is(err, common.ErrTransientService) {
		t.Fatalf("err = %v, want ErrTransientService", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
