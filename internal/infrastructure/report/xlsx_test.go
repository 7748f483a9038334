package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestFindingsWorkbookWritesRowsInOrder(t *testing.T) {
	exam := &domain.Exam{
		ID:     "exam-1",
		Type:   domain.ExamPanoramic,
		Status: domain.ExamCompleted,
		Summary: &domain.ExamSummary{
			TotalImages:       2,
			AnalyzedImages:    1,
			FailedImages:      1,
			TotalFindings:     2,
			SeverityHistogram: map[domain.Severity]int{domain.SeverityMild: 1, domain.SeverityModerate: 1, domain.SeveritySevere: 0},
			FindingsByType:    map[domain.FindingType]int{domain.FindingCaries: 1, domain.FindingPeriodontal: 1},
			PrimaryDiagnoses:  []string{"Cárie oclusal"},
		},
	}
	findings := []domain.Finding{
		{ImageID: "img-1", ToothNumber: "16", Type: domain.FindingCaries, Severity: domain.SeverityModerate, Confidence: 0.87, BBox: &domain.BoundingBox{X: 10, Y: 20, Width: 30, Height: 40}},
		{ImageID: "img-1", Type: domain.FindingPeriodontal, Severity: domain.SeverityMild, Confidence: 0.8, ClinicalRecommendations: []string{"Raspagem", "Reavaliação"}},
	}

	data, err := FindingsWorkbook(exam, findings)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(findingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "Tooth", rows[0][1])
	require.Equal(t, []string{"img-1", "16", "caries", "moderada", "0.87", "", "", "", "10", "20", "30", "40"}, rows[1])
	require.Equal(t, "Raspagem\nReavaliação", rows[2][7])

	summary, err := f.GetRows(summarySheet)
	require.NoError(t, err)
	require.Equal(t, []string{"Exam", "exam-1"}, summary[0])
	require.Contains(t, summary, []string{"Failed images", "1"})
	require.Contains(t, summary, []string{"Severity severa", "0"})
	require.Contains(t, summary, []string{"Type caries", "1"})
}

func TestFindingsWorkbookWithoutSummary(t *testing.T) {
	data, err := FindingsWorkbook(&domain.Exam{ID: "exam-2"}, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{findingsSheet}, f.GetSheetList())
	rows, err := f.GetRows(findingsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
