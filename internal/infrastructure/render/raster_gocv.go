//go:build gocv

package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

type Renderer struct{}

func New() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Dimensions(data []byte) (domain.ImageDimensions, error) {
	return Dimensions(data)
}

// Render draws every instruction with OpenCV and returns a PNG.
func (r *Renderer) Render(ctx context.Context, source []byte, instructions []domain.OverlayInstruction) ([]byte, error) {
	mat, err := gocv.IMDecode(source, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("decode source image: empty image")
	}

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	for _, ins := range instructions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ins.Shape != domain.ShapeRectangle {
			continue
		}
		rect := pixelRect(ins.BBox).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		c := parseHexColor(ins.Color)
		gocv.Rectangle(&mat, rect, c, thicknessOf(ins))
		if ins.Label != "" {
			origin := image.Pt(rect.Min.X+2, rect.Min.Y-4)
			if origin.Y < 12 {
				origin.Y = rect.Min.Y + 14
			}
			gocv.PutText(&mat, ins.Label, origin, gocv.FontHersheySimplex, 0.45, c, 1)
		}
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode overlay png: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}
