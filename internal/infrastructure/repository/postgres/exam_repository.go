package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type ExamRepository struct {
	db *sql.DB
}

func NewExamRepository(db *sql.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// CreateWithImages inserts the exam and its images in one transaction.
func (r *ExamRepository) CreateWithImages(ctx context.Context, exam *domain.Exam, images []domain.Image) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create exam tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO exams (id, exam_type, status, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, exam.ID, string(exam.Type), string(exam.Status), exam.Error, exam.CreatedAt, exam.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	for _, img := range images {
		_, err := tx.ExecContext(ctx, `
INSERT INTO exam_images (
	id, exam_id, storage_ref, original_filename, mime_type, size_bytes, image_type, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, img.ID, exam.ID, img.StorageRef, img.OriginalFilename, img.MimeType, img.SizeBytes,
			string(img.ImageType), string(img.Status), img.CreatedAt, img.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert exam image %s: %w", img.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create exam tx: %w", err)
	}
	return nil
}

func (r *ExamRepository) GetByID(ctx context.Context, id string) (*domain.Exam, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, exam_type, status, error_message, summary, created_at, updated_at, processed_at
FROM exams
WHERE id = $1
`, id)

	var exam domain.Exam
	var examType, status string
	var summaryRaw []byte
	var processedAt sql.NullTime

	err := row.Scan(&exam.ID, &examType, &status, &exam.Error, &summaryRaw, &exam.CreatedAt, &exam.UpdatedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrExamNotFound, "get exam", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan exam: %w", err)
	}

	summary, err := scanNullableJSON[domain.ExamSummary](summaryRaw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal exam summary: %w", err)
	}
	exam.Summary = summary
	exam.Type = domain.ExamType(examType)
	exam.Status = domain.ExamStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		exam.ProcessedAt = &t
	}
	return &exam, nil
}

func (r *ExamRepository) UpdateStatus(ctx context.Context, id string, status domain.ExamStatus, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE exams
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update exam status: %w", err)
	}
	return requireRow(result, domain.ErrExamNotFound, "update exam status", id)
}

// Complete stores the aggregate summary and marks the exam completed.
func (r *ExamRepository) Complete(ctx context.Context, id string, summary domain.ExamSummary) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
UPDATE exams
SET status = $2, summary = $3, error_message = '', processed_at = $4, updated_at = $4
WHERE id = $1
`, id, string(domain.ExamCompleted), summary, now)
	if err != nil {
		return fmt.Errorf("complete exam: %w", err)
	}
	return requireRow(result, domain.ErrExamNotFound, "complete exam", id)
}

func requireRow(result sql.Result, kind error, operation, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if rows == 0 {
		return domain.WrapError(kind, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
