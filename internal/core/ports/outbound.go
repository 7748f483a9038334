package ports

import (
	"context"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// ExamRepository persists exams and their aggregate summary.
type ExamRepository interface {
	CreateWithImages(ctx context.Context, exam *domain.Exam, images []domain.Image) error
	GetByID(ctx context.Context, id string) (*domain.Exam, error)
	UpdateStatus(ctx context.Context, id string, status domain.ExamStatus, errMessage string) error
	Complete(ctx context.Context, id string, summary domain.ExamSummary) error
}

// ImageRepository persists image state. Transitions are conditional on the
// current status. Reclaim renews a processing claim last touched before
// staleBefore and fails with domain.ErrConflict otherwise.
type ImageRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Image, error)
	ListByExam(ctx context.Context, examID string) ([]domain.Image, error)
	Transition(ctx context.Context, id string, from, to domain.ImageStatus) error
	Reclaim(ctx context.Context, id string, staleBefore time.Time) error
	SaveAnalysis(ctx context.Context, analysis domain.ImageAnalysis) error
	MarkFailed(ctx context.Context, id string, failure domain.ImageFailure) error
}

// FindingRepository serves the reporting read over persisted findings.
type FindingRepository interface {
	ListByImageIDs(ctx context.Context, imageIDs []string) ([]domain.Finding, error)
}

// ImageStore reads source images and writes overlay artifacts. Deleting a
// missing object is not an error.
type ImageStore interface {
	Get(ctx context.Context, ref string) (domain.StoredObject, error)
	Put(ctx context.Context, ref string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, ref string) error
}

// VisionProvider wraps one external vision-capable model endpoint.
type VisionProvider interface {
	Name() string
	Generate(ctx context.Context, req domain.ProviderRequest) (string, error)
}

// OverlayRenderer rasterizes overlay instructions onto a copy of the source.
type OverlayRenderer interface {
	Dimensions(data []byte) (domain.ImageDimensions, error)
	Render(ctx context.Context, source []byte, instructions []domain.OverlayInstruction) ([]byte, error)
}

// MessageQueue publishes/consumes analysis requests.
type MessageQueue interface {
	PublishAnalysisRequested(ctx context.Context, req domain.AnalysisRequest) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error
}

// PipelineMetrics receives pipeline observations. Implementations must be
// safe for concurrent use.
type PipelineMetrics interface {
	ObserveProviderAttempt(provider string, err error, duration time.Duration)
	ObserveImage(status domain.ImageStatus, stage string, duration time.Duration)
	ObserveRejectedFindings(count int)
	ExamStarted()
	ExamFinished(status domain.ExamStatus, duration time.Duration)
}
