package ports

import (
	"context"
	"io"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// UploadFile is one file of an exam submission.
type UploadFile struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ExamIntake is the inbound contract for exam submission and analysis triggers.
type ExamIntake interface {
	CreateExam(ctx context.Context, examType string, files []UploadFile) (*domain.Exam, error)
	RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error
}

// ExamReader is the inbound read model for exams and their findings.
type ExamReader interface {
	GetExam(ctx context.Context, examID string) (*domain.Exam, error)
	ListFindings(ctx context.Context, examID string) ([]domain.Finding, error)
}

// ExamProcessor is the inbound contract for asynchronous exam processing.
type ExamProcessor interface {
	ProcessExam(ctx context.Context, examID string) (*domain.ExamSummary, error)
	ProcessImage(ctx context.Context, examID, imageID string) (*domain.ImageOutcome, error)
}
