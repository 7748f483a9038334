package domain

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

type ExamStatus string

const (
	ExamPending    ExamStatus = "pending"
	ExamProcessing ExamStatus = "processing"
	ExamCompleted  ExamStatus = "completed"
	ExamFailed     ExamStatus = "failed"
)

type ExamType string

const (
	ExamPanoramic     ExamType = "panoramic"
	ExamPeriapical    ExamType = "periapical"
	ExamBitewing      ExamType = "bitewing"
	ExamCephalometric ExamType = "cephalometric"
	ExamVolumetric    ExamType = "volumetric-scan"
)

// examTypeAliases is checked in order; the first alias contained in the
// lower-cased input wins.
var examTypeAliases = []struct {
	alias string
	typ   ExamType
}{
	{"panoramica", ExamPanoramic},
	{"panorâmica", ExamPanoramic},
	{"panoramic", ExamPanoramic},
	{"periapical", ExamPeriapical},
	{"bitewing", ExamBitewing},
	{"mordida", ExamBitewing},
	{"cefalometrica", ExamCephalometric},
	{"cefalométrica", ExamCephalometric},
	{"cephalometric", ExamCephalometric},
	{"volumetric", ExamVolumetric},
	{"tomografia", ExamVolumetric},
	{"cbct", ExamVolumetric},
	{"scan", ExamVolumetric},
	{"fotografia", ExamPeriapical},
	{"photo", ExamPeriapical},
	{"radiografia", ExamPanoramic},
}

// ParseExamType maps a free-form exam label to a known exam type.
// Unknown labels fall back to panoramic.
func ParseExamType(raw string) ExamType {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ExamPanoramic
	}
	for _, entry := range examTypeAliases {
		if strings.Contains(value, entry.alias) {
			return entry.typ
		}
	}
	return ExamPanoramic
}

type Exam struct {
	ID          string       `json:"id"`
	Type        ExamType     `json:"exam_type"`
	Status      ExamStatus   `json:"status"`
	Error       string       `json:"error,omitempty"`
	Summary     *ExamSummary `json:"summary,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ProcessedAt *time.Time   `json:"processed_at,omitempty"`
	Images      []Image      `json:"images,omitempty"`
}

// ExamSummary is the aggregate of every image outcome of an exam.
type ExamSummary struct {
	TotalImages             int                 `json:"total_images"`
	AnalyzedImages          int                 `json:"analyzed_images"`
	FailedImages            int                 `json:"failed_images"`
	TotalFindings           int                 `json:"total_findings"`
	RejectedFindings        int                 `json:"rejected_findings"`
	SeverityHistogram       map[Severity]int    `json:"severity_histogram"`
	FindingsByType          map[FindingType]int `json:"findings_by_type"`
	PrimaryDiagnoses        []string            `json:"primary_diagnoses"`
	ClinicalRecommendations []string            `json:"clinical_recommendations"`
	FailureReasons          map[string]int      `json:"failure_reasons"`
	RequiresAdditionalExams bool                `json:"requires_additional_exams"`
}

func (s ExamSummary) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *ExamSummary) Scan(value any) error {
	*s = ExamSummary{}
	return scanJSON("exam summary", value, s)
}
