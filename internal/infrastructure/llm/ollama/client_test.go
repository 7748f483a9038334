package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestGenerateSendsImageAndPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  {\"findings\":[]}  "}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Model: "llava"})
	out, err := client.Generate(context.Background(), domain.ProviderRequest{
		Image:    []byte{1, 2, 3},
		MIMEType: "image/png",
		Prompt:   domain.PromptSpec{System: "sistema", User: "analise"},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != `{"findings":[]}` {
		t.Fatalf("unexpected output %q", out)
	}
	if payload["model"] != "llava" || payload["format"] != "json" || payload["prompt"] != "analise" {
		t.Fatalf("unexpected payload %v", payload)
	}
	images, _ := payload["images"].([]any)
	if len(images) != 1 || images[0] != "AQID" {
		t.Fatalf("expected base64 image, got %v", payload["images"])
	}
}

func TestGenerateWrapsHTTPFailureAsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, Model: "llava"})
	_, err := client.Generate(context.Background(), domain.ProviderRequest{Image: []byte{1}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGenerateRejectsEmptyImage(t *testing.T) {
	client := New(Options{BaseURL: "http://127.0.0.1:1", Model: "llava"})
	_, err := client.Generate(context.Background(), domain.ProviderRequest{})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
