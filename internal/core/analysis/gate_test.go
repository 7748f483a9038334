package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestGateDropsLowConfidenceFinding(t *testing.T) {
	raw := strings.Replace(scenarioResponse, `"confidence":87`, `"confidence":40`, 1)
	result, err := Parse(raw)
	require.NoError(t, err)

	findings := NewNormalizer(nil).Normalize(result)
	require.Len(t, findings, 1)
	require.InDelta(t, 0.40, findings[0].Confidence, 1e-9)

	accepted, decision := NewGate(DefaultMinQuality, DefaultMinConfidence).Apply(result, findings)
	require.Empty(t, accepted)
	require.False(t, decision.Rejected)
	require.Equal(t, 1, decision.RejectedFindings)
	require.Equal(t, 0, decision.AcceptedFindings)
}

func TestGateQualityVeto(t *testing.T) {
	raw := strings.Replace(scenarioResponse, `"overall_quality":8.5`, `"overall_quality":3`, 1)
	result, err := Parse(raw)
	require.NoError(t, err)

	findings := NewNormalizer(nil).Normalize(result)
	findings = append(findings, domain.Finding{Type: domain.FindingFracture, Confidence: 0.99})

	accepted, decision := NewGate(DefaultMinQuality, DefaultMinConfidence).Apply(result, findings)
	require.Empty(t, accepted)
	require.True(t, decision.Rejected)
	require.Equal(t, domain.ReasonInadequateQuality, decision.Reason)
	require.Equal(t, "inadequate image quality", decision.Reason)
	require.Equal(t, 3.0, decision.QualityScore)
}

func TestGateConfidenceFloorHolds(t *testing.T) {
	gate := NewGate(6, 0.75)
	result := domain.AnalysisResult{QualityScore: 6}

	var findings []domain.Finding
	for i := 0; i <= 100; i++ {
		findings = append(findings, domain.Finding{Type: domain.FindingCaries, Confidence: float64(i) / 100})
	}

	accepted, decision := gate.Apply(result, findings)
	for _, f := range accepted {
		require.GreaterOrEqual(t, f.Confidence, gate.MinConfidence)
	}
	require.Equal(t, len(findings), len(accepted)+decision.RejectedFindings)
	require.False(t, decision.Rejected, "quality equal to the threshold passes")
}

func TestGateDegradedResultSkipsQualityVeto(t *testing.T) {
	result, err := Parse(`{"findings": [{"name": "Cárie", "confidence": 0.9}, {"name": "Lesão", "confidence": 0.5}]}`)
	require.NoError(t, err)
	require.True(t, result.Degraded)
	require.False(t, result.QualityPresent)

	accepted, decision := NewGate(0, 0).Apply(result, NewNormalizer(nil).Normalize(result))
	require.False(t, decision.Rejected)
	require.Empty(t, decision.Reason)
	require.Equal(t, domain.DefaultQualityScore, decision.QualityScore)
	require.Len(t, accepted, 1)
	require.Equal(t, 1, decision.RejectedFindings)
}

func TestGateReportedLowQualityStillVetoes(t *testing.T) {
	result, err := Parse(`{"image_quality_analysis": {"overall_quality": 5}, "findings": [{"name": "Cárie", "confidence": 0.9}]}`)
	require.NoError(t, err)
	require.True(t, result.QualityPresent)

	accepted, decision := NewGate(0, 0).Apply(result, NewNormalizer(nil).Normalize(result))
	require.Empty(t, accepted)
	require.True(t, decision.Rejected)
	require.Equal(t, domain.ReasonInadequateQuality, decision.Reason)
}

func TestNewGateDefaults(t *testing.T) {
	gate := NewGate(0, 5)
	require.Equal(t, DefaultMinQuality, gate.MinQuality)
	require.Equal(t, DefaultMinConfidence, gate.MinConfidence)
}
