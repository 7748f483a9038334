package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type FindingRepository struct {
	db *sql.DB
}

func NewFindingRepository(db *sql.DB) *FindingRepository {
	return &FindingRepository{db: db}
}

// ListByImageIDs returns the findings of the given images ordered by tooth
// number; findings without a tooth come last.
func (r *FindingRepository) ListByImageIDs(ctx context.Context, imageIDs []string) ([]domain.Finding, error) {
	out := make([]domain.Finding, 0)
	if len(imageIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(imageIDs))
	args := make([]any, len(imageIDs))
	for i, id := range imageIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `
SELECT id, exam_id, image_id, finding_type, tooth_number, severity, confidence, bbox,
	description, clinical_recommendations, urgency, expert_validated, created_at
FROM dental_findings
WHERE image_id IN (` + strings.Join(placeholders, ",") + `)
ORDER BY NULLIF(tooth_number, '')::int NULLS LAST, created_at, id
`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.Finding
		var findingType, severity string
		var bboxRaw []byte
		var recommendations stringList
		if err := rows.Scan(
			&f.ID, &f.ExamID, &f.ImageID, &findingType, &f.ToothNumber, &severity, &f.Confidence, &bboxRaw,
			&f.Description, &recommendations, &f.Urgency, &f.ExpertValidated, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		bbox, err := scanNullableJSON[domain.BoundingBox](bboxRaw)
		if err != nil {
			return nil, fmt.Errorf("unmarshal finding bbox: %w", err)
		}
		f.BBox = bbox
		f.Type = domain.FindingType(findingType)
		f.Severity = domain.Severity(severity)
		f.ClinicalRecommendations = []string(recommendations)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return out, nil
}
