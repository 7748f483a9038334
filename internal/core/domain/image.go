package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ImageStatus string

const (
	ImageUploaded   ImageStatus = "uploaded"
	ImageProcessing ImageStatus = "processing"
	ImageAnalyzed   ImageStatus = "analyzed"
	// ImageCompleted is a terminal-success alias kept for rows written by
	// older pipeline versions.
	ImageCompleted ImageStatus = "completed"
	ImageFailed    ImageStatus = "failed"
)

func (s ImageStatus) IsTerminal() bool {
	return s == ImageAnalyzed || s == ImageCompleted || s == ImageFailed
}

func (s ImageStatus) Succeeded() bool {
	return s == ImageAnalyzed || s == ImageCompleted
}

// CanTransition reports whether an image may move from one status to another.
// Failed images may only go back to uploaded through an explicit retry.
func CanTransition(from, to ImageStatus) bool {
	switch from {
	case ImageUploaded:
		return to == ImageProcessing
	case ImageProcessing:
		return to == ImageAnalyzed || to == ImageFailed
	case ImageFailed:
		return to == ImageUploaded
	default:
		return false
	}
}

// Pipeline stages recorded on image failures.
const (
	StageDownload = "download"
	StageProvider = "provider"
	StageParse    = "parse"
	StageGate     = "gate"
	StageOverlay  = "overlay"
	StagePersist  = "persist"
)

type Image struct {
	ID                      string        `json:"id"`
	ExamID                  string        `json:"exam_id"`
	StorageRef              string        `json:"storage_ref"`
	OriginalFilename        string        `json:"original_filename"`
	MimeType                string        `json:"mime_type"`
	SizeBytes               int64         `json:"size_bytes"`
	ImageType               ExamType      `json:"image_type"`
	Status                  ImageStatus   `json:"status"`
	Provider                string        `json:"provider,omitempty"`
	RawResponse             string        `json:"raw_response,omitempty"`
	Findings                FindingList   `json:"findings"`
	Confidence              float64       `json:"confidence"`
	QualityScore            float64       `json:"quality_score"`
	RejectedFindings        int           `json:"rejected_findings"`
	PrimaryDiagnosis        string        `json:"primary_diagnosis,omitempty"`
	ClinicalRecommendations []string      `json:"clinical_recommendations,omitempty"`
	RequiresAdditionalExams bool          `json:"requires_additional_exams"`
	OverlayRef              string        `json:"overlay_ref,omitempty"`
	Failure                 *ImageFailure `json:"failure,omitempty"`
	CreatedAt               time.Time     `json:"created_at"`
	UpdatedAt               time.Time     `json:"updated_at"`
	ProcessedAt             *time.Time    `json:"processed_at,omitempty"`
}

// ImageFailure is the error payload attached to a failed image.
type ImageFailure struct {
	Message     string    `json:"message"`
	Stage       string    `json:"stage"`
	Kind        string    `json:"kind"`
	RawResponse string    `json:"raw_response,omitempty"`
	At          time.Time `json:"at"`
}

func (f ImageFailure) Value() (driver.Value, error) {
	return json.Marshal(f)
}

func (f *ImageFailure) Scan(value any) error {
	return scanJSON("image failure", value, f)
}

// ImageAnalysis is everything persisted for an image that passed the gate.
type ImageAnalysis struct {
	ImageID                 string
	Provider                string
	RawResponse             string
	Findings                []Finding
	Confidence              float64
	QualityScore            float64
	RejectedFindings        int
	PrimaryDiagnosis        string
	ClinicalRecommendations []string
	RequiresAdditionalExams bool
	OverlayRef              string
	ProcessedAt             time.Time
}

// ImageOutcome is the immutable result of one image pipeline run.
type ImageOutcome struct {
	ImageID  string        `json:"image_id"`
	Status   ImageStatus   `json:"status"`
	Provider string        `json:"provider,omitempty"`
	Accepted []Finding     `json:"accepted"`
	Gate     GateDecision  `json:"gate"`
	Failure  *ImageFailure `json:"failure,omitempty"`
}

func scanJSON(name string, value any, dst any) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan %s: unsupported type %T", name, value)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
