package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestOverlayBuilderEmitsRectanglePerBox(t *testing.T) {
	findings := []domain.Finding{
		{Type: domain.FindingCaries, Confidence: 0.87, BBox: &domain.BoundingBox{X: 10, Y: 20, Width: 30, Height: 40}},
		{Type: domain.FindingPeriodontal, Confidence: 0.8},
		{Type: domain.FindingFracture, Confidence: 0.92, BBox: &domain.BoundingBox{X: 50, Y: 50, Width: 10, Height: 10}},
	}

	instructions := NewOverlayBuilder(0).Build(findings, domain.ImageDimensions{Width: 200, Height: 100})
	require.Len(t, instructions, 2)

	first := instructions[0]
	require.Equal(t, domain.ShapeRectangle, first.Shape)
	require.Equal(t, domain.BoundingBox{X: 10, Y: 20, Width: 30, Height: 40}, first.BBox)
	require.Equal(t, "#FF0000", first.Color)
	require.Equal(t, DefaultOverlayThickness, first.Thickness)
	require.Equal(t, "caries 87%", first.Label)

	require.Equal(t, "#FF1493", instructions[1].Color)
	require.Equal(t, "fracture 92%", instructions[1].Label)
}

func TestOverlayBuilderClampsAndScales(t *testing.T) {
	dims := domain.ImageDimensions{Width: 1000, Height: 500}
	builder := NewOverlayBuilder(2)

	out := builder.Build([]domain.Finding{
		{Type: domain.FindingImplant, Confidence: 0.9, BBox: &domain.BoundingBox{X: 0.5, Y: 0.5, Width: 0.1, Height: 0.2}},
		{Type: domain.FindingOther, Confidence: 0.9, BBox: &domain.BoundingBox{X: 950, Y: -10, Width: 100, Height: 60}},
		{Type: domain.FindingOther, Confidence: 0.9, BBox: &domain.BoundingBox{X: 2000, Y: 10, Width: 10, Height: 10}},
	}, dims)
	require.Len(t, out, 2)

	require.InDelta(t, 500, out[0].BBox.X, 1e-9)
	require.InDelta(t, 250, out[0].BBox.Y, 1e-9)
	require.InDelta(t, 100, out[0].BBox.Width, 1e-9)
	require.InDelta(t, 100, out[0].BBox.Height, 1e-9)
	require.Equal(t, 2, out[0].Thickness)

	require.Equal(t, domain.BoundingBox{X: 950, Y: 0, Width: 50, Height: 50}, out[1].BBox)
	require.Equal(t, "#FFD700", out[1].Color)
}

func TestOverlayBuilderKeepsBoxesWhenDimensionsUnknown(t *testing.T) {
	out := NewOverlayBuilder(0).Build([]domain.Finding{
		{Type: domain.FindingPeriapical, Confidence: 0.8, BBox: &domain.BoundingBox{X: 5000, Y: 10, Width: 10, Height: 10}},
	}, domain.ImageDimensions{})
	require.Len(t, out, 1)
	require.Equal(t, 5000.0, out[0].BBox.X)
	require.Equal(t, "periapical 80%", out[0].Label)
}

func TestPaletteCoversEveryFindingType(t *testing.T) {
	for _, typ := range domain.FindingTypes {
		require.NotEmpty(t, DefaultPalette[typ], "no color for %s", typ)
	}
}
