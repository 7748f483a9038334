package domain

// DefaultQualityScore is used when a provider omits the quality section.
const DefaultQualityScore = 5.0

// ReasonInadequateQuality is the failure reason for images vetoed by the
// quality gate.
const ReasonInadequateQuality = "inadequate image quality"

// AnalysisResult is the parsed provider payload before normalization.
type AnalysisResult struct {
	QualityScore   float64
	QualityPresent bool
	Conditions     []Condition
	Overlays       []OverlayHint
	Summary        ClinicalSummary
	// Degraded is set when quality or findings were missing and defaults
	// were applied.
	Degraded bool
}

// Condition is one provider-reported observation in provider vocabulary.
type Condition struct {
	Name            string
	Location        string
	ToothNumber     string
	Severity        string
	Confidence      float64
	Description     string
	BBox            *BoundingBox
	Recommendations []string
	Urgency         string
}

// OverlayHint is a drawing suggestion returned by the provider.
type OverlayHint struct {
	BBox  BoundingBox
	Color string
	Label string
}

type ClinicalSummary struct {
	PrimaryDiagnosis        string
	Recommendations         []string
	RequiresAdditionalExams bool
}

// GateDecision records what the quality and confidence gate did.
type GateDecision struct {
	Rejected         bool    `json:"rejected"`
	Reason           string  `json:"reason,omitempty"`
	QualityScore     float64 `json:"quality_score"`
	AcceptedFindings int     `json:"accepted_findings"`
	RejectedFindings int     `json:"rejected_findings"`
}

type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d ImageDimensions) Known() bool {
	return d.Width > 0 && d.Height > 0
}

const ShapeRectangle = "rectangle"

// OverlayInstruction is one drawable annotation in image pixel space.
type OverlayInstruction struct {
	Shape       string      `json:"shape"`
	BBox        BoundingBox `json:"bbox"`
	Color       string      `json:"color"`
	Thickness   int         `json:"thickness"`
	Label       string      `json:"label"`
	FindingType FindingType `json:"finding_type"`
}

// PromptSpec is the provider-independent instruction contract.
type PromptSpec struct {
	System           string
	User             string
	ResponseMIMEType string
}

type ProviderRequest struct {
	Image    []byte
	MIMEType string
	Prompt   PromptSpec
}

type ProviderResponse struct {
	Raw      string
	Provider string
	Attempts []ProviderAttempt
}

// AnalysisRequest triggers the pipeline for a whole exam or, when ImageID is
// set, for a single image retry.
type AnalysisRequest struct {
	ExamID  string `json:"exam_id"`
	ImageID string `json:"image_id,omitempty"`
}

type StoredObject struct {
	Data        []byte
	ContentType string
}
