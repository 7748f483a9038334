package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/bootstrap"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/config"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, app.Metrics.Handler(), stop)

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	err = app.Queue.SubscribeAnalysisRequested(ctx, func(handlerCtx context.Context, req domain.AnalysisRequest) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.WorkerProcessTimeout())
		defer cancel()
		return handle(processCtx, app, req)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics_shutdown_failed", "error", err)
	}
}

const requeueTimeout = 5 * time.Second

func handle(ctx context.Context, app *bootstrap.App, req domain.AnalysisRequest) error {
	logger := slog.With("exam_id", req.ExamID, "image_id", req.ImageID)
	if req.ImageID != "" {
		outcome, err := app.ProcessUC.ProcessImage(ctx, req.ExamID, req.ImageID)
		if err != nil {
			return fmt.Errorf("process image: %w", err)
		}
		logger.Info("image_processed", "status", outcome.Status, "provider", outcome.Provider, "findings", len(outcome.Accepted))
		return nil
	}

	summary, err := app.ProcessUC.ProcessExam(ctx, req.ExamID)
	if domain.IsKind(err, domain.ErrTemporary) {
		// Core NATS does not redeliver, so images left unstarted go back on
		// the subject for the next worker.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
		defer cancel()
		if pubErr := app.Queue.PublishAnalysisRequested(pubCtx, domain.AnalysisRequest{ExamID: req.ExamID}); pubErr != nil {
			return fmt.Errorf("process exam: %w; requeue: %v", err, pubErr)
		}
		logger.Warn("exam_requeued", "reason", err.Error())
		return nil
	}
	if err != nil {
		return fmt.Errorf("process exam: %w", err)
	}
	logger.Info("exam_processed",
		"analyzed_images", summary.AnalyzedImages,
		"failed_images", summary.FailedImages,
		"total_findings", summary.TotalFindings,
	)
	return nil
}

func startMetricsServer(port string, handler http.Handler, onFailure func()) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_failed", "error", err)
			onFailure()
		}
	}()
	return server
}
