package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/llmhttp"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
)

const (
	ProviderName = "gemini"
	DefaultModel = "gemini-1.5-pro"
)

type Options struct {
	APIKey             string
	Model              string
	ClientOptions      []option.ClientOption
	ResilienceExecutor *resilience.Executor
}

// Client sends one image plus the analysis prompt to Gemini and returns the
// first text part of the answer.
type Client struct {
	apiKey   string
	model    string
	extra    []option.ClientOption
	executor *resilience.Executor
}

func New(opts Options) *Client {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		apiKey:   strings.TrimSpace(opts.APIKey),
		model:    model,
		extra:    opts.ClientOptions,
		executor: opts.ResilienceExecutor,
	}
}

func (c *Client) Name() string {
	return ProviderName
}

func (c *Client) Generate(ctx context.Context, req domain.ProviderRequest) (string, error) {
	if c.apiKey == "" {
		return "", domain.WrapError(domain.ErrProvider, "gemini generate", errors.New("GEMINI_API_KEY is empty"))
	}
	if len(req.Image) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "gemini generate", errors.New("empty image"))
	}

	text, err := llmhttp.Execute(ctx, c.executor, "provider.gemini", func(ctx context.Context) (string, error) {
		return c.generateOnce(ctx, req)
	}, classifyError)
	if err != nil {
		return "", llmhttp.WrapProviderError("gemini generate", err, classifyError)
	}
	return text, nil
}

func (c *Client) generateOnce(ctx context.Context, req domain.ProviderRequest) (string, error) {
	opts := append([]option.ClientOption{option.WithAPIKey(c.apiKey)}, c.extra...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0.1),
		ResponseMIMEType: req.Prompt.ResponseMIMEType,
	}
	if strings.TrimSpace(req.Prompt.System) != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.Prompt.System)},
		}
	}

	parts := []genai.Part{
		genai.Text(req.Prompt.User),
		genai.Blob{MIMEType: blobMIME(req.MIMEType), Data: req.Image},
	}
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", err
	}
	txt := strings.TrimSpace(firstText(resp))
	if txt == "" {
		return "", errors.New("gemini: empty response")
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func blobMIME(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" || mime == "image/jpg" {
		return "image/jpeg"
	}
	return mime
}

func classifyError(err error) resilience.ErrorClassification {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if code := apiErr.HTTPCode(); code > 0 {
			retry := llmhttp.IsRetryableStatus(code)
			return resilience.ErrorClassification{Retryable: retry, RecordFailure: retry}
		}
		if status := apiErr.GRPCStatus(); status != nil {
			switch status.Code() {
			case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
				return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
			default:
				return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
			}
		}
	}
	return llmhttp.ClassifyError(err)
}

func ptrFloat32(v float32) *float32 { return &v }
