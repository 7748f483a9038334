package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/llmhttp"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"
)

type Options struct {
	APIKey             string
	BaseURL            string
	Model              string
	MaxTokens          int
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

// Client calls an OpenAI-compatible chat completions endpoint with the image
// attached as a data URL.
type Client struct {
	http      *llmhttp.Client
	apiKey    string
	model     string
	maxTokens int
	executor  *resilience.Executor
}

func New(opts Options) *Client {
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	return &Client{
		http:      llmhttp.NewClient(ProviderName, baseURL, map[string]string{"Authorization": "Bearer " + apiKey}, opts.HTTPClient),
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		executor:  opts.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return ProviderName
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Client) Generate(ctx context.Context, req domain.ProviderRequest) (string, error) {
	if c.apiKey == "" {
		return "", domain.WrapError(domain.ErrProvider, "openai generate", errors.New("OPENAI_API_KEY is empty"))
	}
	if len(req.Image) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "openai generate", errors.New("empty image"))
	}

	messages := make([]chatMessage, 0, 2)
	if strings.TrimSpace(req.Prompt.System) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Prompt.System})
	}
	messages = append(messages, chatMessage{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: req.Prompt.User},
			{Type: "image_url", ImageURL: &imageURL{URL: analysis.DataURL(req.MIMEType, req.Image), Detail: "high"}},
		},
	})

	body := map[string]any{
		"model":                 c.model,
		"messages":              messages,
		"max_completion_tokens": c.maxTokens,
		"temperature":           0.1,
	}
	if req.Prompt.ResponseMIMEType == "application/json" {
		body["response_format"] = map[string]string{"type": "json_object"}
	}

	text, err := llmhttp.Execute(ctx, c.executor, "provider.openai", func(ctx context.Context) (string, error) {
		var resp chatResponse
		if err := c.http.PostJSON(ctx, "/chat/completions", body, &resp, "chat completion"); err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai: no choices in response")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}, llmhttp.ClassifyError)
	if err != nil {
		return "", llmhttp.WrapProviderError("openai generate", err, llmhttp.ClassifyError)
	}
	return text, nil
}
