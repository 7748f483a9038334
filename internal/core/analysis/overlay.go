package analysis

import (
	"fmt"
	"math"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

const DefaultOverlayThickness = 3

// DefaultPalette colors overlays by finding type.
var DefaultPalette = map[domain.FindingType]string{
	domain.FindingCaries:      "#FF0000",
	domain.FindingPeriodontal: "#FF8C00",
	domain.FindingPeriapical:  "#8A2BE2",
	domain.FindingImplant:     "#1E90FF",
	domain.FindingFracture:    "#FF1493",
	domain.FindingOrthodontic: "#32CD32",
	domain.FindingOther:       "#FFD700",
}

type OverlayBuilder struct {
	palette   map[domain.FindingType]string
	thickness int
}

func NewOverlayBuilder(thickness int) *OverlayBuilder {
	if thickness <= 0 {
		thickness = DefaultOverlayThickness
	}
	return &OverlayBuilder{palette: DefaultPalette, thickness: thickness}
}

// Build emits one rectangle per finding with a bounding box. Fractional boxes
// are scaled to pixels and every box is clamped when dimensions are known.
func (b *OverlayBuilder) Build(findings []domain.Finding, dims domain.ImageDimensions) []domain.OverlayInstruction {
	out := make([]domain.OverlayInstruction, 0, len(findings))
	for _, finding := range findings {
		if finding.BBox == nil {
			continue
		}
		box, ok := fitBox(*finding.BBox, dims)
		if !ok {
			continue
		}
		out = append(out, domain.OverlayInstruction{
			Shape:       domain.ShapeRectangle,
			BBox:        box,
			Color:       b.colorFor(finding.Type),
			Thickness:   b.thickness,
			Label:       Label(finding),
			FindingType: finding.Type,
		})
	}
	return out
}

func (b *OverlayBuilder) colorFor(t domain.FindingType) string {
	if color, ok := b.palette[t]; ok {
		return color
	}
	return b.palette[domain.FindingOther]
}

// Label renders "<type> <confidence%>", e.g. "caries 87%".
func Label(f domain.Finding) string {
	return fmt.Sprintf("%s %d%%", f.Type, int(math.Round(f.Confidence*100)))
}

func fitBox(box domain.BoundingBox, dims domain.ImageDimensions) (domain.BoundingBox, bool) {
	if box.Empty() {
		return domain.BoundingBox{}, false
	}
	if !dims.Known() {
		return box, true
	}

	width := float64(dims.Width)
	height := float64(dims.Height)
	if box.X <= 1 && box.Y <= 1 && box.Width <= 1 && box.Height <= 1 {
		box = domain.BoundingBox{
			X:      box.X * width,
			Y:      box.Y * height,
			Width:  box.Width * width,
			Height: box.Height * height,
		}
	}

	x0 := math.Max(0, box.X)
	y0 := math.Max(0, box.Y)
	x1 := math.Min(width, box.X+box.Width)
	y1 := math.Min(height, box.Y+box.Height)
	if x1 <= x0 || y1 <= y0 {
		return domain.BoundingBox{}, false
	}
	return domain.BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}, true
}
