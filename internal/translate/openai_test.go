package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newChatServer(t *testing.T, status int, content string, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"upstream down","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAITranslator_Translate(t *testing.T) {
	var req chatRequest
	srv := newChatServer(t, http.StatusOK, "  Hallo Welt \n", &req)

	tr := NewOpenAITranslator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	got, err := tr.Translate(context.Background(), "hello world", "de", "en")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "Hallo Welt" {
		t.Errorf("Translate() = %q, want %q", got, "Hallo Welt")
	}
	if req.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", req.Model)
	}
	if len(req.Messages) != 2 || req.Messages[1].Content != "hello world" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, `"de"`) || !strings.Contains(req.Messages[0].Content, `"en"`) {
		t.Errorf("system prompt should name both languages: %q", req.Messages[0].Content)
	}
}

func TestOpenAITranslator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
		target  string
	}{
		{"server error", http.StatusInternalServerError, "", "de"},
		{"blank translation", http.StatusOK, "   ", "de"},
		{"missing target", http.StatusOK, "x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newChatServer(t, tt.status, tt.content, nil)
			tr := NewOpenAITranslator(OpenAIConfig{BaseURL: srv.URL + "/v1"})
			if _, err := tr.Translate(context.Background(), "hello", tt.target, ""); err == nil {
				t.Error("Translate() should fail")
			}
		})
	}
}

func TestSystemPromptWithoutSource(t *testing.T) {
	p := systemPrompt("fr", "")
	if !strings.Contains(p, "the source language") || !strings.Contains(p, `"fr"`) {
		t.Errorf("unexpected prompt: %q", p)
	}
}
