package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// Parse extracts the JSON payload from a raw provider response. A fenced
// block is preferred; otherwise the first balanced {...} span is used.
func Parse(raw string) (domain.AnalysisResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrParse, "parse provider response", errors.New("empty response"))
	}

	var candidates []string
	if fenced, ok := fencedBlock(text); ok {
		candidates = append(candidates, fenced)
	}
	if span, ok := firstObjectSpan(text); ok {
		candidates = append(candidates, span)
	}
	if len(candidates) == 0 {
		return domain.AnalysisResult{}, domain.WrapError(domain.ErrParse, "parse provider response", errors.New("no json object found"))
	}

	var lastErr error
	for _, candidate := range candidates {
		var payload wirePayload
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			lastErr = err
			continue
		}
		return payload.toResult(), nil
	}
	return domain.AnalysisResult{}, domain.WrapError(domain.ErrParse, "parse provider response", lastErr)
}

// fencedBlock returns the body of the first ``` fence, skipping an optional
// language tag on the opening line.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	body := text[start+3:]
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	body = body[:end]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || !strings.ContainsAny(tag, "{[") {
			body = body[nl+1:]
		}
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return "", false
	}
	return body, true
}

// firstObjectSpan finds the first top-level balanced object, ignoring braces
// inside JSON strings.
func firstObjectSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

type wirePayload struct {
	QualityAnalysis *wireQuality    `json:"image_quality_analysis"`
	ImageQuality    json.RawMessage `json:"image_quality"`
	QualityScore    *flexNumber     `json:"quality_score"`
	Findings        []wireCondition `json:"findings"`
	Conditions      []wireCondition `json:"conditions"`
	Overlays        []wireOverlay   `json:"overlay_instructions"`
	ClinicalSummary *wireSummary    `json:"clinical_summary"`
}

type wireQuality struct {
	OverallQuality *flexNumber `json:"overall_quality"`
	Score          *flexNumber `json:"score"`
}

func (q *wireQuality) value() (float64, bool) {
	if q == nil {
		return 0, false
	}
	if q.OverallQuality != nil {
		return float64(*q.OverallQuality), true
	}
	if q.Score != nil {
		return float64(*q.Score), true
	}
	return 0, false
}

type wireCondition struct {
	Name             flexString  `json:"name"`
	FindingType      flexString  `json:"finding_type"`
	Type             flexString  `json:"type"`
	Condition        flexString  `json:"condition"`
	Location         flexString  `json:"location"`
	ToothNumber      flexString  `json:"tooth_number"`
	Tooth            flexString  `json:"tooth"`
	Severity         flexString  `json:"severity"`
	ClinicalSeverity flexString  `json:"clinical_severity"`
	Confidence       flexNumber  `json:"confidence"`
	Details          flexString  `json:"details"`
	Description      flexString  `json:"description"`
	BBox             *wireBox    `json:"bbox"`
	Coordinates      *wireBox    `json:"coordinates"`
	Recommendations  flexStrings `json:"clinical_recommendations"`
	Urgency          flexString  `json:"urgency"`
}

type wireBox struct {
	X      flexNumber `json:"x"`
	Y      flexNumber `json:"y"`
	Width  flexNumber `json:"width"`
	Height flexNumber `json:"height"`
}

func (b *wireBox) toBox() *domain.BoundingBox {
	if b == nil {
		return nil
	}
	box := domain.BoundingBox{
		X:      float64(b.X),
		Y:      float64(b.Y),
		Width:  float64(b.Width),
		Height: float64(b.Height),
	}
	if box.Empty() {
		return nil
	}
	return &box
}

type wireOverlay struct {
	BBox  *wireBox   `json:"bbox"`
	Color flexString `json:"color"`
	Label flexString `json:"label"`
}

type wireSummary struct {
	PrimaryDiagnosis        flexString  `json:"primary_diagnosis"`
	Recommendations         flexStrings `json:"recommendations"`
	ClinicalRecommendations flexStrings `json:"clinical_recommendations"`
	RequiresAdditionalExams bool        `json:"requires_additional_exams"`
}

func (p wirePayload) toResult() domain.AnalysisResult {
	result := domain.AnalysisResult{}

	if score, ok := p.quality(); ok {
		result.QualityScore = score
		result.QualityPresent = true
	} else {
		result.QualityScore = domain.DefaultQualityScore
		result.Degraded = true
	}

	items := p.Findings
	if items == nil {
		items = p.Conditions
	}
	if items == nil {
		result.Degraded = true
	}
	result.Conditions = make([]domain.Condition, 0, len(items))
	for _, item := range items {
		result.Conditions = append(result.Conditions, item.toCondition())
	}

	for _, overlay := range p.Overlays {
		box := overlay.BBox.toBox()
		if box == nil {
			continue
		}
		result.Overlays = append(result.Overlays, domain.OverlayHint{
			BBox:  *box,
			Color: string(overlay.Color),
			Label: string(overlay.Label),
		})
	}

	if p.ClinicalSummary != nil {
		recommendations := []string(p.ClinicalSummary.Recommendations)
		if len(recommendations) == 0 {
			recommendations = []string(p.ClinicalSummary.ClinicalRecommendations)
		}
		result.Summary = domain.ClinicalSummary{
			PrimaryDiagnosis:        strings.TrimSpace(string(p.ClinicalSummary.PrimaryDiagnosis)),
			Recommendations:         recommendations,
			RequiresAdditionalExams: p.ClinicalSummary.RequiresAdditionalExams,
		}
	}
	return result
}

func (p wirePayload) quality() (float64, bool) {
	if score, ok := p.QualityAnalysis.value(); ok {
		return score, true
	}
	if raw := bytes.TrimSpace(p.ImageQuality); len(raw) > 0 {
		if raw[0] == '{' {
			var nested wireQuality
			if err := json.Unmarshal(raw, &nested); err == nil {
				if score, ok := nested.value(); ok {
					return score, true
				}
			}
		} else if score, ok := numberValue(raw); ok {
			return score, true
		}
	}
	if p.QualityScore != nil {
		return float64(*p.QualityScore), true
	}
	return 0, false
}

func (c wireCondition) toCondition() domain.Condition {
	box := c.BBox.toBox()
	if box == nil {
		box = c.Coordinates.toBox()
	}
	return domain.Condition{
		Name:            firstNonEmpty(c.Name, c.FindingType, c.Type, c.Condition),
		Location:        string(c.Location),
		ToothNumber:     firstNonEmpty(c.ToothNumber, c.Tooth),
		Severity:        firstNonEmpty(c.Severity, c.ClinicalSeverity),
		Confidence:      float64(c.Confidence),
		Description:     firstNonEmpty(c.Details, c.Description),
		BBox:            box,
		Recommendations: []string(c.Recommendations),
		Urgency:         string(c.Urgency),
	}
}

func firstNonEmpty(values ...flexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}

// flexNumber accepts 87, 87.5, "87", "87%" and "0,87". Non-numeric values
// leave it at zero.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	if v, ok := numberValue(data); ok {
		*n = flexNumber(v)
	}
	return nil
}

func numberValue(data []byte) (float64, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return 0, false
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
		s = strings.ReplaceAll(s, ",", ".")
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, false
	}
	return v, true
}

// flexString accepts strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		var v string
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return nil
	}
	*s = flexString(num.String())
	return nil
}

// flexStrings accepts a single string or a list of strings.
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if v := strings.TrimSpace(string(item)); v != "" {
				out = append(out, v)
			}
		}
		*s = out
		return nil
	}
	var single flexString
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return err
	}
	if v := strings.TrimSpace(string(single)); v != "" {
		*s = []string{v}
	}
	return nil
}
