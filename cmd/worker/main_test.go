package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/bootstrap"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type processorFake struct {
	examErr error
}

func (p processorFake) ProcessExam(context.Context, string) (*domain.ExamSummary, error) {
	return &domain.ExamSummary{TotalImages: 3, AnalyzedImages: 2}, p.examErr
}

func (p processorFake) ProcessImage(_ context.Context, _, imageID string) (*domain.ImageOutcome, error) {
	return &domain.ImageOutcome{ImageID: imageID, Status: domain.ImageAnalyzed}, nil
}

type publisherFake struct {
	mu        sync.Mutex
	published []domain.AnalysisRequest
	err       error
}

func (q *publisherFake) PublishAnalysisRequested(ctx context.Context, req domain.AnalysisRequest) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, req)
	return nil
}

func (q *publisherFake) SubscribeAnalysisRequested(context.Context, func(context.Context, domain.AnalysisRequest) error) error {
	return errors.New("not implemented")
}

func TestHandleRequeuesUnstartedExamAfterDeadline(t *testing.T) {
	queue := &publisherFake{}
	unstarted := domain.WrapError(domain.ErrTemporary, "process exam", context.DeadlineExceeded)
	app := &bootstrap.App{ProcessUC: processorFake{examErr: unstarted}, Queue: queue}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := handle(ctx, app, domain.AnalysisRequest{ExamID: "exam-1"}); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(queue.published) != 1 || queue.published[0].ExamID != "exam-1" || queue.published[0].ImageID != "" {
		t.Fatalf("expected exam to be requeued, got %+v", queue.published)
	}
}

func TestHandleReportsFailedRequeue(t *testing.T) {
	queue := &publisherFake{err: errors.New("nats: no servers available for connection")}
	unstarted := domain.WrapError(domain.ErrTemporary, "process exam", context.DeadlineExceeded)
	app := &bootstrap.App{ProcessUC: processorFake{examErr: unstarted}, Queue: queue}

	err := handle(context.Background(), app, domain.AnalysisRequest{ExamID: "exam-1"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected the processing error to surface, got %v", err)
	}
}

func TestHandleDoesNotRequeueOtherErrors(t *testing.T) {
	queue := &publisherFake{}
	app := &bootstrap.App{ProcessUC: processorFake{examErr: domain.ErrExamNotFound}, Queue: queue}

	err := handle(context.Background(), app, domain.AnalysisRequest{ExamID: "missing"})
	if !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam not found, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("permanent errors must not be requeued, got %+v", queue.published)
	}
}

func TestHandleRoutesImageRetries(t *testing.T) {
	queue := &publisherFake{}
	app := &bootstrap.App{ProcessUC: processorFake{examErr: errors.New("exam path must not run")}, Queue: queue}

	if err := handle(context.Background(), app, domain.AnalysisRequest{ExamID: "exam-1", ImageID: "img-1"}); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
}
