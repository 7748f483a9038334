package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/config"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/usecase"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/gemini"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/ollama"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/llm/openai"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/queue/nats"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/render"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/repository/postgres"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/resilience"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/storage/localfs"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/infrastructure/storage/s3store"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	IntakeUC  ports.ExamIntake
	QueryUC   ports.ExamReader
	ProcessUC ports.ExamProcessor
	Metrics   *metrics.WorkerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	executor := resilience.NewExecutor(cfg.Resilience()).WithStateObserver(workerMetrics.ObserveBreakerState)

	store, err := newImageStore(ctx, cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init image storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	providers, err := buildProviders(cfg, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	taxonomy, err := loadTaxonomy(cfg.TaxonomyFile)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}

	return wire(cfg, db, store, queue, providers, taxonomy, workerMetrics, func() {
		queue.Close()
		_ = db.Close()
	}), nil
}

func wire(
	cfg config.Config,
	db *sql.DB,
	store ports.ImageStore,
	queue ports.MessageQueue,
	providers []ports.VisionProvider,
	taxonomy *analysis.Taxonomy,
	workerMetrics *metrics.WorkerMetrics,
	closeFn func(),
) *App {
	exams := postgres.NewExamRepository(db)
	images := postgres.NewImageRepository(db)
	findings := postgres.NewFindingRepository(db)

	orchestrator := usecase.NewProviderOrchestrator(providers, usecase.ProviderOrchestratorOptions{
		Priority: cfg.ProviderPriority,
		Timeout:  cfg.ProviderTimeout(),
		Metrics:  workerMetrics,
	})

	processUC := usecase.NewProcessExamUseCase(exams, images, store, orchestrator, render.New(), usecase.ProcessOptions{
		Concurrency:  cfg.ExamConcurrency,
		ClaimTimeout: cfg.WorkerProcessTimeout(),
		Normalizer:   analysis.NewNormalizer(taxonomy),
		Gate:         analysis.NewGate(cfg.MinQualityScore, cfg.MinConfidence),
		Overlays:     analysis.NewOverlayBuilder(cfg.OverlayThickness),
		Metrics:      workerMetrics,
	})

	return &App{
		Config: cfg,
		Queue:  queue,

		IntakeUC:  usecase.NewExamIntakeUseCase(exams, images, store, queue, cfg.MaxUploadBytes),
		QueryUC:   usecase.NewExamQueryUseCase(exams, images, findings),
		ProcessUC: processUC,
		Metrics:   workerMetrics,

		closeFn: closeFn,
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newImageStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ImageStore, error) {
	switch cfg.StorageBackend {
	case "", "localfs":
		store, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := s3store.New(ctx, s3store.Options{
			Bucket:             cfg.S3Bucket,
			Region:             cfg.S3Region,
			Endpoint:           cfg.S3Endpoint,
			UsePathStyle:       cfg.S3UsePathStyle,
			AccessKeyID:        cfg.S3AccessKeyID,
			SecretAccessKey:    cfg.S3SecretAccessKey,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

// buildProviders registers the providers named in PROVIDER_PRIORITY. Hosted
// providers without an API key are skipped.
func buildProviders(cfg config.Config, executor *resilience.Executor) ([]ports.VisionProvider, error) {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout()}

	providers := make([]ports.VisionProvider, 0, len(cfg.ProviderPriority))
	for _, name := range cfg.ProviderPriority {
		switch name {
		case gemini.ProviderName:
			if cfg.GeminiAPIKey == "" {
				slog.Warn("provider_skipped", "provider", name, "reason", "GEMINI_API_KEY is empty")
				continue
			}
			providers = append(providers, gemini.New(gemini.Options{
				APIKey:             cfg.GeminiAPIKey,
				Model:              cfg.GeminiModel,
				ResilienceExecutor: executor,
			}))
		case openai.ProviderName:
			if cfg.OpenAIAPIKey == "" {
				slog.Warn("provider_skipped", "provider", name, "reason", "OPENAI_API_KEY is empty")
				continue
			}
			providers = append(providers, openai.New(openai.Options{
				APIKey:             cfg.OpenAIAPIKey,
				BaseURL:            cfg.OpenAIBaseURL,
				Model:              cfg.OpenAIModel,
				MaxTokens:          cfg.OpenAIMaxTokens,
				HTTPClient:         httpClient,
				ResilienceExecutor: executor,
			}))
		case ollama.ProviderName:
			providers = append(providers, ollama.New(ollama.Options{
				BaseURL:            cfg.OllamaURL,
				Model:              cfg.OllamaVisionModel,
				HTTPClient:         httpClient,
				ResilienceExecutor: executor,
			}))
		default:
			slog.Warn("provider_skipped", "provider", name, "reason", "unknown provider")
		}
	}
	if len(providers) == 0 {
		return nil, errors.New("no vision provider configured: check PROVIDER_PRIORITY and API keys")
	}
	return providers, nil
}

func loadTaxonomy(path string) (*analysis.Taxonomy, error) {
	if path == "" {
		return analysis.DefaultTaxonomy(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open taxonomy file: %w", err)
	}
	defer f.Close()
	taxonomy, err := analysis.LoadTaxonomy(f)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy %s: %w", path, err)
	}
	return taxonomy, nil
}
