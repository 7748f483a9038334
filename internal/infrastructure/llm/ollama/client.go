package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/llmhttp"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

const ProviderName = "ollama"

// Client calls a local Ollama vision model through /api/generate.
type Client struct {
	http     *llmhttp.Client
	model    string
	executor *resilience.Executor
}

type Options struct {
	BaseURL            string
	Model              string
	HTTPClient         *http.Client
	ResilienceExecutor *resilience.Executor
}

func New(opts Options) *Client {
	return &Client{
		http:     llmhttp.NewClient(ProviderName, opts.BaseURL, nil, opts.HTTPClient),
		model:    opts.Model,
		executor: opts.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return ProviderName
}

func (c *Client) Generate(ctx context.Context, req domain.ProviderRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "ollama generate", fmt.Errorf("empty image"))
	}

	body := map[string]any{
		"model":  c.model,
		"system": req.Prompt.System,
		"prompt": req.Prompt.User,
		"images": []string{base64.StdEncoding.EncodeToString(req.Image)},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.1,
		},
	}

	text, err := llmhttp.Execute(ctx, c.executor, "provider.ollama", func(ctx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.http.PostJSON(ctx, "/api/generate", body, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, llmhttp.ClassifyError)
	if err != nil {
		return "", llmhttp.WrapProviderError("ollama generate", err, llmhttp.ClassifyError)
	}
	return text, nil
}
