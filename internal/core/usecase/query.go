package usecase

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
)

type ExamQueryUseCase struct {
	exams    ports.ExamRepository
	images   ports.ImageRepository
	findings ports.FindingRepository
}

func NewExamQueryUseCase(
	exams ports.ExamRepository,
	images ports.ImageRepository,
	findings ports.FindingRepository,
) *ExamQueryUseCase {
	return &ExamQueryUseCase{
		exams:    exams,
		images:   images,
		findings: findings,
	}
}

func (uc *ExamQueryUseCase) GetExam(ctx context.Context, examID string) (*domain.Exam, error) {
	exam, err := uc.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	images, err := uc.images.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam images: %w", err)
	}
	exam.Images = images
	return exam, nil
}

// ListFindings returns every persisted finding of the exam's images ordered by
// tooth number.
func (uc *ExamQueryUseCase) ListFindings(ctx context.Context, examID string) ([]domain.Finding, error) {
	if _, err := uc.exams.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	images, err := uc.images.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam images: %w", err)
	}
	if len(images) == 0 {
		return []domain.Finding{}, nil
	}

	ids := lo.Map(images, func(img domain.Image, _ int) string { return img.ID })
	findings, err := uc.findings.ListByImageIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	if findings == nil {
		findings = []domain.Finding{}
	}
	return findings, nil
}
