package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type FindingType string

const (
	FindingCaries      FindingType = "caries"
	FindingPeriodontal FindingType = "periodontal"
	FindingPeriapical  FindingType = "periapical"
	FindingImplant     FindingType = "implant"
	FindingFracture    FindingType = "fracture"
	FindingOrthodontic FindingType = "orthodontic"
	FindingOther       FindingType = "other"
)

// FindingTypes lists every canonical finding type, catch-all last.
var FindingTypes = []FindingType{
	FindingCaries,
	FindingPeriodontal,
	FindingPeriapical,
	FindingImplant,
	FindingFracture,
	FindingOrthodontic,
	FindingOther,
}

type Severity string

const (
	SeverityMild     Severity = "leve"
	SeverityModerate Severity = "moderada"
	SeveritySevere   Severity = "severa"
)

// Rank orders severities from mild (1) to severe (3).
func (s Severity) Rank() int {
	switch s {
	case SeveritySevere:
		return 3
	case SeverityModerate:
		return 2
	case SeverityMild:
		return 1
	default:
		return 0
	}
}

// BoundingBox is expressed in source image pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

type Finding struct {
	ID                      string       `json:"id,omitempty"`
	ExamID                  string       `json:"exam_id,omitempty"`
	ImageID                 string       `json:"image_id,omitempty"`
	Type                    FindingType  `json:"finding_type"`
	ToothNumber             string       `json:"tooth_number,omitempty"`
	Severity                Severity     `json:"severity"`
	Confidence              float64      `json:"confidence"`
	BBox                    *BoundingBox `json:"bbox,omitempty"`
	Description             string       `json:"description,omitempty"`
	ClinicalRecommendations []string     `json:"clinical_recommendations,omitempty"`
	Urgency                 string       `json:"urgency,omitempty"`
	ExpertValidated         bool         `json:"expert_validated"`
	CreatedAt               time.Time    `json:"created_at,omitempty"`
}

// FindingList is stored as a JSONB column on the image row.
type FindingList []Finding

func (l FindingList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Finding(l))
}

func (l *FindingList) Scan(value any) error {
	*l = FindingList{}
	return scanJSON("finding list", value, l)
}
