package analysis

import "github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"

const (
	DefaultMinQuality    = 6.0
	DefaultMinConfidence = 0.75
)

// Gate applies the image-level quality veto and the per-finding confidence
// floor. A result without a quality section skips the veto; its midpoint
// score is a placeholder, not a measurement.
type Gate struct {
	MinQuality    float64
	MinConfidence float64
}

func NewGate(minQuality, minConfidence float64) Gate {
	if minQuality <= 0 {
		minQuality = DefaultMinQuality
	}
	if minConfidence <= 0 || minConfidence > 1 {
		minConfidence = DefaultMinConfidence
	}
	return Gate{MinQuality: minQuality, MinConfidence: minConfidence}
}

func (g Gate) Apply(result domain.AnalysisResult, findings []domain.Finding) ([]domain.Finding, domain.GateDecision) {
	decision := domain.GateDecision{QualityScore: result.QualityScore}

	if result.QualityPresent && result.QualityScore < g.MinQuality {
		decision.Rejected = true
		decision.Reason = domain.ReasonInadequateQuality
		decision.RejectedFindings = len(findings)
		return []domain.Finding{}, decision
	}

	accepted := make([]domain.Finding, 0, len(findings))
	for _, finding := range findings {
		if finding.Confidence >= g.MinConfidence {
			accepted = append(accepted, finding)
			continue
		}
		decision.RejectedFindings++
	}
	decision.AcceptedFindings = len(accepted)
	return accepted, decision
}
