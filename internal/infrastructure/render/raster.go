//go:build !gocv

package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Dimensions(data []byte) (domain.ImageDimensions, error) {
	return Dimensions(data)
}

// Render draws every instruction on a copy of source and returns a PNG.
func (r *Renderer) Render(ctx context.Context, source []byte, instructions []domain.OverlayInstruction) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	canvas := image.NewRGBA(src.Bounds())
	draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, ins := range instructions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ins.Shape != domain.ShapeRectangle {
			continue
		}
		rect := pixelRect(ins.BBox).Add(canvas.Bounds().Min).Intersect(canvas.Bounds())
		if rect.Empty() {
			continue
		}
		paint := image.NewUniform(parseHexColor(ins.Color))
		strokeRect(canvas, rect, thicknessOf(ins), paint)
		drawLabel(canvas, rect, ins.Label, paint)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode overlay png: %w", err)
	}
	return buf.Bytes(), nil
}

func strokeRect(dst draw.Image, rect image.Rectangle, thickness int, paint image.Image) {
	t := min(thickness, rect.Dx(), rect.Dy())
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(dst, edge, paint, image.Point{}, draw.Src)
	}
}

// drawLabel writes the label above the box, or inside it when the box
// touches the top edge.
func drawLabel(dst draw.Image, rect image.Rectangle, label string, paint image.Image) {
	if label == "" {
		return
	}
	face := basicfont.Face7x13
	baseline := rect.Min.Y - 3
	if baseline-face.Ascent < dst.Bounds().Min.Y {
		baseline = rect.Min.Y + face.Ascent + 2
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  paint,
		Face: face,
		Dot:  fixed.P(rect.Min.X+2, baseline),
	}
	d.DrawString(label)
}
