package analysis

import (
	"math"
	"regexp"
	"strings"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

var (
	toothAfterLocator = regexp.MustCompile(`(?i)(?:\b(?:dente|dentes|tooth|teeth|elemento|d)\b\.?|#)\s*(\d{1,2})\b`)
	toothToken        = regexp.MustCompile(`\b(\d{1,2})\b`)
)

// Normalizer maps provider vocabulary onto the canonical finding model.
// It holds no mutable state; Normalize is safe for concurrent use.
type Normalizer struct {
	taxonomy *Taxonomy
}

func NewNormalizer(taxonomy *Taxonomy) *Normalizer {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Normalizer{taxonomy: taxonomy}
}

// Normalize converts every condition into a Finding, keeping response order.
func (n *Normalizer) Normalize(result domain.AnalysisResult) []domain.Finding {
	findings := make([]domain.Finding, 0, len(result.Conditions))
	usedHints := make([]bool, len(result.Overlays))

	for _, condition := range result.Conditions {
		finding := domain.Finding{
			Type:                    n.taxonomy.Classify(condition.Name),
			ToothNumber:             extractTooth(condition),
			Severity:                ClassifySeverity(condition.Severity),
			Confidence:              NormalizeConfidence(condition.Confidence),
			Description:             strings.TrimSpace(condition.Description),
			ClinicalRecommendations: cloneStrings(condition.Recommendations),
			Urgency:                 strings.TrimSpace(condition.Urgency),
		}
		if finding.Description == "" {
			finding.Description = strings.TrimSpace(condition.Name)
		}

		if condition.BBox != nil {
			box := *condition.BBox
			finding.BBox = &box
		} else if idx := matchOverlayHint(result.Overlays, usedHints, condition, finding.ToothNumber); idx >= 0 {
			usedHints[idx] = true
			box := result.Overlays[idx].BBox
			finding.BBox = &box
		}

		findings = append(findings, finding)
	}
	return findings
}

// NormalizeConfidence rescales 0-100 values onto [0,1].
func NormalizeConfidence(value float64) float64 {
	if math.IsNaN(value) || value <= 0 {
		return 0
	}
	if value > 1 {
		value /= 100
	}
	if value > 1 {
		return 1
	}
	return value
}

// ExtractToothNumber finds a 1-2 digit tooth identifier in free text,
// preferring one that follows a locating word.
func ExtractToothNumber(text string) string {
	if text = strings.TrimSpace(text); text == "" {
		return ""
	}
	if m := toothAfterLocator.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := toothToken.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractTooth(condition domain.Condition) string {
	if tooth := ExtractToothNumber(condition.ToothNumber); tooth != "" {
		return tooth
	}
	return ExtractToothNumber(condition.Location)
}

// matchOverlayHint returns the first unused hint whose label mentions the
// condition name or its tooth.
func matchOverlayHint(hints []domain.OverlayHint, used []bool, condition domain.Condition, tooth string) int {
	name := foldText(condition.Name)
	for i, hint := range hints {
		if used[i] {
			continue
		}
		label := foldText(hint.Label)
		if label == "" {
			continue
		}
		if name != "" && (strings.Contains(label, name) || strings.Contains(name, label)) {
			return i
		}
		if tooth != "" && ExtractToothNumber(hint.Label) == tooth {
			return i
		}
	}
	return -1
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
