// Package report renders exam findings as downloadable spreadsheets.
package report

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	findingsSheet = "Findings"
	summarySheet  = "Summary"
)

var findingsHeader = []any{
	"Image", "Tooth", "Type", "Severity", "Confidence", "Urgency", "Description", "Recommendations",
	"BBox X", "BBox Y", "BBox Width", "BBox Height",
}

// FindingsWorkbook builds a two-sheet workbook: the findings in the given
// order and the exam summary, when present.
func FindingsWorkbook(exam *domain.Exam, findings []domain.Finding) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := f.SetSheetRow(findingsSheet, "A1", &findingsHeader); err != nil {
		return nil, fmt.Errorf("write findings header: %w", err)
	}
	if err := f.SetRowStyle(findingsSheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style findings header: %w", err)
	}
	for i, finding := range findings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := findingRow(finding)
		if err := f.SetSheetRow(findingsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write finding row %d: %w", i+1, err)
		}
	}

	if exam != nil && exam.Summary != nil {
		if err := writeSummary(f, exam, bold); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func findingRow(f domain.Finding) []any {
	row := []any{
		f.ImageID, f.ToothNumber, string(f.Type), string(f.Severity), f.Confidence, f.Urgency, f.Description,
		joinLines(f.ClinicalRecommendations),
	}
	if f.BBox != nil {
		row = append(row, f.BBox.X, f.BBox.Y, f.BBox.Width, f.BBox.Height)
	}
	return row
}

func writeSummary(f *excelize.File, exam *domain.Exam, bold int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	s := exam.Summary
	rows := [][]any{
		{"Exam", exam.ID},
		{"Exam type", string(exam.Type)},
		{"Status", string(exam.Status)},
		{"Total images", s.TotalImages},
		{"Analyzed images", s.AnalyzedImages},
		{"Failed images", s.FailedImages},
		{"Total findings", s.TotalFindings},
		{"Rejected findings", s.RejectedFindings},
		{"Requires additional exams", s.RequiresAdditionalExams},
	}
	for _, severity := range []domain.Severity{domain.SeverityMild, domain.SeverityModerate, domain.SeveritySevere} {
		rows = append(rows, []any{"Severity " + string(severity), s.SeverityHistogram[severity]})
	}
	types := make([]string, 0, len(s.FindingsByType))
	for t := range s.FindingsByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []any{"Type " + t, s.FindingsByType[domain.FindingType(t)]})
	}
	rows = append(rows,
		[]any{"Primary diagnoses", joinLines(s.PrimaryDiagnoses)},
		[]any{"Clinical recommendations", joinLines(s.ClinicalRecommendations)},
	)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetColStyle(summarySheet, "A", bold); err != nil {
		return fmt.Errorf("style summary labels: %w", err)
	}
	return nil
}

func joinLines(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "\n"
		}
		out += v
	}
	return out
}
