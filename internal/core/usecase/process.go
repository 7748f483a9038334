package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
)

const (
	DefaultExamConcurrency = 4
	DefaultClaimTimeout    = 10 * time.Minute
)

type ProcessExamUseCase struct {
	exams      ports.ExamRepository
	images     ports.ImageRepository
	store      ports.ImageStore
	providers  *ProviderOrchestrator
	renderer   ports.OverlayRenderer
	normalizer *analysis.Normalizer
	gate       analysis.Gate
	overlays   *analysis.OverlayBuilder
	metrics    ports.PipelineMetrics

	concurrency  int
	claimTimeout time.Duration
	now          func() time.Time
}

type ProcessOptions struct {
	Concurrency int
	// ClaimTimeout is how long a processing image belongs to the run that
	// claimed it. Older claims are taken over by the next run.
	ClaimTimeout time.Duration
	Normalizer   *analysis.Normalizer
	Gate         analysis.Gate
	Overlays     *analysis.OverlayBuilder
	Metrics      ports.PipelineMetrics
	Clock        func() time.Time
}

func NewProcessExamUseCase(
	exams ports.ExamRepository,
	images ports.ImageRepository,
	store ports.ImageStore,
	providers *ProviderOrchestrator,
	renderer ports.OverlayRenderer,
	opts ProcessOptions,
) *ProcessExamUseCase {
	uc := &ProcessExamUseCase{
		exams:        exams,
		images:       images,
		store:        store,
		providers:    providers,
		renderer:     renderer,
		normalizer:   opts.Normalizer,
		gate:         opts.Gate,
		overlays:     opts.Overlays,
		metrics:      opts.Metrics,
		concurrency:  opts.Concurrency,
		claimTimeout: opts.ClaimTimeout,
		now:          opts.Clock,
	}
	if uc.normalizer == nil {
		uc.normalizer = analysis.NewNormalizer(nil)
	}
	if uc.gate == (analysis.Gate{}) {
		uc.gate = analysis.NewGate(0, 0)
	}
	if uc.overlays == nil {
		uc.overlays = analysis.NewOverlayBuilder(0)
	}
	if uc.metrics == nil {
		uc.metrics = noopMetrics{}
	}
	if uc.concurrency <= 0 {
		uc.concurrency = DefaultExamConcurrency
	}
	if uc.claimTimeout <= 0 {
		uc.claimTimeout = DefaultClaimTimeout
	}
	if uc.now == nil {
		uc.now = func() time.Time { return time.Now().UTC() }
	}
	return uc
}

// ProcessExam runs every non-terminal image of the exam. Image failures are
// recorded on the image and never fail the exam. Images left unstarted because
// ctx ended are reported as domain.ErrTemporary so the caller can requeue.
func (uc *ProcessExamUseCase) ProcessExam(ctx context.Context, examID string) (*domain.ExamSummary, error) {
	start := time.Now()
	exam, err := uc.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("fetch exam by id: %w", err)
	}

	images, err := uc.images.ListByExam(ctx, examID)
	if err != nil {
		uc.metrics.ExamStarted()
		uc.metrics.ExamFinished(domain.ExamFailed, time.Since(start))
		return nil, uc.failExam(ctx, examID, fmt.Errorf("list exam images: %w", err))
	}

	pending := make([]domain.Image, 0, len(images))
	for _, img := range images {
		if !img.Status.IsTerminal() {
			pending = append(pending, img)
		}
	}
	if len(pending) == 0 && exam.Status == domain.ExamCompleted {
		slog.Info("exam_already_completed", "exam_id", examID)
		if exam.Summary != nil {
			return exam.Summary, nil
		}
		summary := SummarizeExam(images)
		return &summary, nil
	}

	uc.metrics.ExamStarted()
	status := domain.ExamProcessing
	defer func() { uc.metrics.ExamFinished(status, time.Since(start)) }()

	if exam.Status != domain.ExamProcessing {
		if err := uc.exams.UpdateStatus(ctx, examID, domain.ExamProcessing, ""); err != nil {
			return nil, fmt.Errorf("set exam status=processing: %w", err)
		}
	}

	slog.Info("exam_processing_started", "exam_id", examID, "images", len(images), "pending", len(pending), "concurrency", uc.concurrency)
	unstarted := uc.runPool(ctx, exam, pending)

	summary, completed, err := uc.finalize(ctx, examID)
	if err != nil {
		return nil, err
	}
	if completed {
		status = domain.ExamCompleted
		return summary, nil
	}
	if unstarted > 0 {
		return summary, domain.WrapError(domain.ErrTemporary, "process exam", fmt.Errorf("%d images not started: %w", unstarted, context.Cause(ctx)))
	}
	return summary, nil
}

// ProcessImage retries a single image. A failed image goes back to uploaded
// first; an image that already succeeded is a conflict.
func (uc *ProcessExamUseCase) ProcessImage(ctx context.Context, examID, imageID string) (*domain.ImageOutcome, error) {
	exam, err := uc.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("fetch exam by id: %w", err)
	}
	img, err := uc.images.GetByID(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("fetch image by id: %w", err)
	}
	if img.ExamID != examID {
		return nil, domain.WrapError(domain.ErrImageNotFound, "process image", fmt.Errorf("image %s does not belong to exam %s", imageID, examID))
	}

	switch {
	case img.Status.Succeeded():
		return nil, domain.WrapError(domain.ErrConflict, "process image", fmt.Errorf("image %s is already %s", imageID, img.Status))
	case img.Status == domain.ImageFailed:
		if err := uc.images.Transition(ctx, imageID, domain.ImageFailed, domain.ImageUploaded); err != nil {
			return nil, fmt.Errorf("reset failed image: %w", err)
		}
		img.Status = domain.ImageUploaded
		img.Failure = nil
	}

	if exam.Status != domain.ExamProcessing {
		if err := uc.exams.UpdateStatus(ctx, examID, domain.ExamProcessing, ""); err != nil {
			return nil, fmt.Errorf("set exam status=processing: %w", err)
		}
	}

	outcome := uc.runImage(context.WithoutCancel(ctx), exam, *img)
	if _, _, err := uc.finalize(ctx, examID); err != nil {
		return &outcome, err
	}
	return &outcome, nil
}

// runPool processes images through a bounded pool and returns how many never
// started. Caller cancellation is checked before each image starts; a started
// image always reaches a terminal status.
func (uc *ProcessExamUseCase) runPool(ctx context.Context, exam *domain.Exam, pending []domain.Image) int {
	detached := context.WithoutCancel(ctx)
	var unstarted atomic.Int64

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, img := range pending {
		if ctx.Err() != nil {
			unstarted.Add(int64(len(pending) - i))
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				unstarted.Add(1)
				return nil
			}
			uc.runImage(detached, exam, img)
			return nil
		})
	}
	_ = g.Wait()

	n := int(unstarted.Load())
	if n > 0 {
		slog.Warn("exam_processing_cancelled", "exam_id", exam.ID, "unstarted", n)
	}
	return n
}

// finalize completes the exam from the stored image records once every image
// is terminal.
func (uc *ProcessExamUseCase) finalize(ctx context.Context, examID string) (*domain.ExamSummary, bool, error) {
	images, err := uc.images.ListByExam(context.WithoutCancel(ctx), examID)
	if err != nil {
		return nil, false, fmt.Errorf("reload exam images: %w", err)
	}

	summary := SummarizeExam(images)
	for _, img := range images {
		if !img.Status.IsTerminal() {
			slog.Info("exam_processing_incomplete", "exam_id", examID, "analyzed", summary.AnalyzedImages, "failed", summary.FailedImages, "total", summary.TotalImages)
			return &summary, false, nil
		}
	}

	if err := uc.exams.Complete(context.WithoutCancel(ctx), examID, summary); err != nil {
		return nil, false, fmt.Errorf("complete exam: %w", err)
	}
	slog.Info("exam_processing_completed",
		"exam_id", examID,
		"analyzed", summary.AnalyzedImages,
		"failed", summary.FailedImages,
		"findings", summary.TotalFindings,
		"rejected_findings", summary.RejectedFindings,
	)
	return &summary, true, nil
}

func (uc *ProcessExamUseCase) failExam(ctx context.Context, examID string, cause error) error {
	if err := uc.exams.UpdateStatus(context.WithoutCancel(ctx), examID, domain.ExamFailed, cause.Error()); err != nil {
		return fmt.Errorf("%w; mark exam failed: %v", cause, err)
	}
	return cause
}

// stageError tags a pipeline error with the stage it came from.
type stageError struct {
	stage string
	raw   string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func failAt(stage string, err error) error {
	return &stageError{stage: stage, err: err}
}

// claim takes ownership of an image for this run. An uploaded image is moved
// to processing; a processing image is taken over only when its claim has gone
// stale, so a run never duplicates work another run is still doing.
func (uc *ProcessExamUseCase) claim(ctx context.Context, img domain.Image) error {
	switch img.Status {
	case domain.ImageUploaded:
		return uc.images.Transition(ctx, img.ID, domain.ImageUploaded, domain.ImageProcessing)
	case domain.ImageProcessing:
		return uc.images.Reclaim(ctx, img.ID, uc.now().Add(-uc.claimTimeout))
	default:
		return domain.WrapError(domain.ErrConflict, "claim image", fmt.Errorf("image %s is %s", img.ID, img.Status))
	}
}

// runImage drives one image to a terminal status and returns its outcome.
func (uc *ProcessExamUseCase) runImage(ctx context.Context, exam *domain.Exam, img domain.Image) domain.ImageOutcome {
	start := time.Now()
	logger := slog.With("exam_id", exam.ID, "image_id", img.ID)

	if err := uc.claim(ctx, img); err != nil {
		logger.Info("image_claim_skipped", "status", img.Status, "error", err)
		return domain.ImageOutcome{ImageID: img.ID, Status: img.Status}
	}

	outcome, err := uc.analyzeImage(ctx, exam, img, logger)
	if err == nil {
		uc.metrics.ObserveImage(domain.ImageAnalyzed, "", time.Since(start))
		logger.Info("image_analyzed", "provider", outcome.Provider, "accepted", outcome.Gate.AcceptedFindings, "rejected", outcome.Gate.RejectedFindings, "duration_ms", time.Since(start).Milliseconds())
		return outcome
	}

	failure := domain.ImageFailure{
		Message: err.Error(),
		Stage:   domain.StagePersist,
		Kind:    domain.FailureKind(err),
		At:      uc.now(),
	}
	var se *stageError
	if errors.As(err, &se) {
		failure.Stage = se.stage
		failure.RawResponse = se.raw
		failure.Message = se.err.Error()
	}
	if failure.Kind == "quality_rejected" {
		failure.Message = domain.ReasonInadequateQuality
	}

	if markErr := uc.images.MarkFailed(ctx, img.ID, failure); markErr != nil {
		logger.Error("image_mark_failed_error", "error", markErr)
	}
	uc.metrics.ObserveImage(domain.ImageFailed, failure.Stage, time.Since(start))
	logger.Warn("image_failed", "stage", failure.Stage, "kind", failure.Kind, "error", err)

	outcome.ImageID = img.ID
	outcome.Status = domain.ImageFailed
	outcome.Failure = &failure
	if outcome.Accepted == nil {
		outcome.Accepted = []domain.Finding{}
	}
	return outcome
}

func (uc *ProcessExamUseCase) analyzeImage(ctx context.Context, exam *domain.Exam, img domain.Image, logger *slog.Logger) (domain.ImageOutcome, error) {
	outcome := domain.ImageOutcome{ImageID: img.ID, Accepted: []domain.Finding{}}

	object, err := uc.store.Get(ctx, img.StorageRef)
	if err != nil {
		return outcome, failAt(domain.StageDownload, domain.WrapError(domain.ErrStorage, "download image", err))
	}
	mime := img.MimeType
	if mime == "" {
		mime = analysis.DetectMIME(img.OriginalFilename, object.ContentType, object.Data)
	}

	examType := img.ImageType
	if examType == "" {
		examType = exam.Type
	}
	resp, err := uc.providers.Analyze(ctx, domain.ProviderRequest{
		Image:    object.Data,
		MIMEType: mime,
		Prompt:   analysis.BuildPrompt(examType),
	}, nil)
	if err != nil {
		return outcome, failAt(domain.StageProvider, err)
	}
	outcome.Provider = resp.Provider

	result, err := analysis.Parse(resp.Raw)
	if err != nil {
		return outcome, &stageError{stage: domain.StageParse, raw: resp.Raw, err: err}
	}
	if result.Degraded {
		logger.Warn("analysis_degraded", "provider", resp.Provider, "quality_present", result.QualityPresent)
	}

	findings := uc.normalizer.Normalize(result)
	accepted, decision := uc.gate.Apply(result, findings)
	outcome.Gate = decision
	uc.metrics.ObserveRejectedFindings(decision.RejectedFindings)
	if decision.Rejected {
		return outcome, &stageError{
			stage: domain.StageGate,
			raw:   resp.Raw,
			err:   domain.WrapError(domain.ErrQualityRejected, "quality gate", fmt.Errorf("%s: score %.1f", decision.Reason, decision.QualityScore)),
		}
	}

	now := uc.now()
	for i := range accepted {
		accepted[i].ID = uuid.NewString()
		accepted[i].ExamID = exam.ID
		accepted[i].ImageID = img.ID
		accepted[i].ExpertValidated = false
		accepted[i].CreatedAt = now
	}

	overlayRef := uc.renderOverlay(ctx, exam.ID, img.ID, object.Data, accepted, logger)

	record := domain.ImageAnalysis{
		ImageID:                 img.ID,
		Provider:                resp.Provider,
		RawResponse:             resp.Raw,
		Findings:                accepted,
		Confidence:              imageConfidence(accepted),
		QualityScore:            result.QualityScore,
		RejectedFindings:        decision.RejectedFindings,
		PrimaryDiagnosis:        primaryDiagnosis(result.Summary, accepted),
		ClinicalRecommendations: collectRecommendations(result.Summary, accepted),
		RequiresAdditionalExams: result.Summary.RequiresAdditionalExams,
		OverlayRef:              overlayRef,
		ProcessedAt:             now,
	}
	if err := uc.images.SaveAnalysis(ctx, record); err != nil {
		return outcome, &stageError{stage: domain.StagePersist, raw: resp.Raw, err: fmt.Errorf("save analysis: %w", err)}
	}

	outcome.Status = domain.ImageAnalyzed
	outcome.Accepted = accepted
	return outcome, nil
}

// renderOverlay stores the annotated copy. Overlay problems are logged and
// never fail the image.
func (uc *ProcessExamUseCase) renderOverlay(ctx context.Context, examID, imageID string, source []byte, findings []domain.Finding, logger *slog.Logger) string {
	if uc.renderer == nil || len(findings) == 0 {
		return ""
	}
	dims, err := uc.renderer.Dimensions(source)
	if err != nil {
		logger.Warn("overlay_skipped", "reason", "undecodable image", "error", err)
		return ""
	}
	instructions := uc.overlays.Build(findings, dims)
	if len(instructions) == 0 {
		return ""
	}
	png, err := uc.renderer.Render(ctx, source, instructions)
	if err != nil {
		logger.Warn("overlay_render_failed", "error", err)
		return ""
	}
	ref, err := uc.store.Put(ctx, OverlayRef(examID, imageID), png, "image/png")
	if err != nil {
		logger.Warn("overlay_store_failed", "error", err)
		return ""
	}
	return ref
}

// OverlayRef is the storage key of an image's rendered overlay.
func OverlayRef(examID, imageID string) string {
	return fmt.Sprintf("%s/overlays/%s_overlay.png", examID, imageID)
}
