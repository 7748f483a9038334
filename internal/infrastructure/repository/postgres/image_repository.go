package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

const imageColumns = `id, exam_id, storage_ref, original_filename, mime_type, size_bytes, image_type, status,
	provider, raw_response, findings, confidence, quality_score, rejected_findings, primary_diagnosis,
	clinical_recommendations, requires_additional_exams, overlay_ref, failure, created_at, updated_at, processed_at`

type ImageRepository struct {
	db *sql.DB
}

func NewImageRepository(db *sql.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

func (r *ImageRepository) GetByID(ctx context.Context, id string) (*domain.Image, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM exam_images WHERE id = $1`, id)
	img, err := scanImage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrImageNotFound, "get image", fmt.Errorf("id=%s", id))
		}
		return nil, err
	}
	return &img, nil
}

func (r *ImageRepository) ListByExam(ctx context.Context, examID string) ([]domain.Image, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+imageColumns+` FROM exam_images WHERE exam_id = $1 ORDER BY created_at, id`, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam images: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam images: %w", err)
	}
	return out, nil
}

// Transition moves an image between statuses only when it is still in from.
// A lost race surfaces as domain.ErrConflict.
func (r *ImageRepository) Transition(ctx context.Context, id string, from, to domain.ImageStatus) error {
	if !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrConflict, "transition image", fmt.Errorf("%s -> %s is not allowed", from, to))
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE exam_images
SET status = $3, updated_at = $4, failure = CASE WHEN $5 THEN NULL ELSE failure END
WHERE id = $1 AND status = $2
`, id, string(from), string(to), time.Now().UTC(), to == domain.ImageUploaded)
	if err != nil {
		return fmt.Errorf("transition image: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition image rows affected: %w", err)
	}
	if rows == 0 {
		return r.conflictOrMissing(ctx, id, "transition image", from)
	}
	return nil
}

// Reclaim takes over a processing image whose claim was last renewed before
// staleBefore. A fresh claim surfaces as domain.ErrConflict.
func (r *ImageRepository) Reclaim(ctx context.Context, id string, staleBefore time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE exam_images
SET updated_at = $3
WHERE id = $1 AND status = $2 AND updated_at < $4
`, id, string(domain.ImageProcessing), time.Now().UTC(), staleBefore)
	if err != nil {
		return fmt.Errorf("reclaim image: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reclaim image rows affected: %w", err)
	}
	if rows == 0 {
		return r.conflictOrMissing(ctx, id, "reclaim image", domain.ImageProcessing)
	}
	return nil
}

// SaveAnalysis stores the accepted findings and marks the image analyzed in a
// single transaction.
func (r *ImageRepository) SaveAnalysis(ctx context.Context, analysis domain.ImageAnalysis) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save analysis tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	findings := domain.FindingList(analysis.Findings)
	var examID string
	err = tx.QueryRowContext(ctx, `
UPDATE exam_images
SET status = $2, provider = $3, raw_response = $4, findings = $5, confidence = $6, quality_score = $7,
	rejected_findings = $8, primary_diagnosis = $9, clinical_recommendations = $10,
	requires_additional_exams = $11, overlay_ref = $12, failure = NULL, processed_at = $13, updated_at = $13
WHERE id = $1 AND status = $14
RETURNING exam_id
`,
		analysis.ImageID, string(domain.ImageAnalyzed), analysis.Provider, analysis.RawResponse, findings,
		analysis.Confidence, analysis.QualityScore, analysis.RejectedFindings, analysis.PrimaryDiagnosis,
		stringList(analysis.ClinicalRecommendations), analysis.RequiresAdditionalExams, analysis.OverlayRef,
		analysis.ProcessedAt, string(domain.ImageProcessing),
	).Scan(&examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrConflict, "save analysis", fmt.Errorf("image %s is not processing", analysis.ImageID))
		}
		return fmt.Errorf("update analyzed image: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM dental_findings WHERE image_id = $1`, analysis.ImageID); err != nil {
		return fmt.Errorf("clear previous findings: %w", err)
	}
	for _, f := range analysis.Findings {
		bbox, err := nullableJSON(f.BBox)
		if err != nil {
			return fmt.Errorf("marshal finding bbox: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO dental_findings (
	id, exam_id, image_id, finding_type, tooth_number, severity, confidence, bbox,
	description, clinical_recommendations, urgency, expert_validated, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
			f.ID, examID, analysis.ImageID, string(f.Type), f.ToothNumber, string(f.Severity), f.Confidence, bbox,
			f.Description, stringList(f.ClinicalRecommendations), f.Urgency, f.ExpertValidated, f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save analysis tx: %w", err)
	}
	return nil
}

func (r *ImageRepository) MarkFailed(ctx context.Context, id string, failure domain.ImageFailure) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE exam_images
SET status = $2, failure = $3, processed_at = $4, updated_at = $4
WHERE id = $1 AND status = $5
`, id, string(domain.ImageFailed), failure, failure.At, string(domain.ImageProcessing))
	if err != nil {
		return fmt.Errorf("mark image failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark image failed rows affected: %w", err)
	}
	if rows == 0 {
		return r.conflictOrMissing(ctx, id, "mark image failed", domain.ImageProcessing)
	}
	return nil
}

func (r *ImageRepository) conflictOrMissing(ctx context.Context, id, operation string, expected domain.ImageStatus) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM exam_images WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrImageNotFound, operation, fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return fmt.Errorf("%s: read current status: %w", operation, err)
	}
	return domain.WrapError(domain.ErrConflict, operation, fmt.Errorf("image %s is %s, expected %s", id, current, expected))
}

func scanImage(row rowScanner) (domain.Image, error) {
	var img domain.Image
	var imageType, status string
	var recommendations stringList
	var failureRaw []byte
	var processedAt sql.NullTime

	err := row.Scan(
		&img.ID, &img.ExamID, &img.StorageRef, &img.OriginalFilename, &img.MimeType, &img.SizeBytes, &imageType, &status,
		&img.Provider, &img.RawResponse, &img.Findings, &img.Confidence, &img.QualityScore, &img.RejectedFindings,
		&img.PrimaryDiagnosis, &recommendations, &img.RequiresAdditionalExams, &img.OverlayRef, &failureRaw,
		&img.CreatedAt, &img.UpdatedAt, &processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Image{}, err
		}
		return domain.Image{}, fmt.Errorf("scan exam image: %w", err)
	}

	failure, err := scanNullableJSON[domain.ImageFailure](failureRaw)
	if err != nil {
		return domain.Image{}, fmt.Errorf("unmarshal image failure: %w", err)
	}
	img.Failure = failure
	img.ImageType = domain.ExamType(imageType)
	img.Status = domain.ImageStatus(status)
	img.ClinicalRecommendations = []string(recommendations)
	if processedAt.Valid {
		t := processedAt.Time
		img.ProcessedAt = &t
	}
	return img, nil
}
