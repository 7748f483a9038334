//go:build !gocv

package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func grayPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x40
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDimensionsReadsHeader(t *testing.T) {
	dims, err := Dimensions(grayPNG(t, 120, 80))
	require.NoError(t, err)
	require.Equal(t, domain.ImageDimensions{Width: 120, Height: 80}, dims)
}

func TestDimensionsRejectsUnknownFormat(t *testing.T) {
	_, err := Dimensions([]byte("DICM not an image"))
	require.Error(t, err)
}

func TestRenderDrawsRectangleBorder(t *testing.T) {
	source := grayPNG(t, 100, 100)
	out, err := New().Render(context.Background(), source, []domain.OverlayInstruction{{
		Shape:     domain.ShapeRectangle,
		BBox:      domain.BoundingBox{X: 20, Y: 30, Width: 40, Height: 50},
		Color:     "#FF0000",
		Thickness: 3,
		Label:     "caries 87%",
	}})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())

	red := color.RGBAModel.Convert(color.RGBA{R: 0xFF, A: 0xFF})
	require.Equal(t, red, color.RGBAModel.Convert(img.At(20, 60)), "left edge")
	require.Equal(t, red, color.RGBAModel.Convert(img.At(59, 60)), "right edge")
	require.Equal(t, red, color.RGBAModel.Convert(img.At(40, 30)), "top edge")
	require.Equal(t, red, color.RGBAModel.Convert(img.At(40, 79)), "bottom edge")

	gray := color.RGBAModel.Convert(color.Gray{Y: 0x40})
	require.Equal(t, gray, color.RGBAModel.Convert(img.At(40, 55)), "interior untouched")
	require.Equal(t, gray, color.RGBAModel.Convert(img.At(90, 90)), "outside untouched")
}

func TestRenderSkipsBoxesOutsideImage(t *testing.T) {
	source := grayPNG(t, 50, 50)
	out, err := New().Render(context.Background(), source, []domain.OverlayInstruction{{
		Shape:     domain.ShapeRectangle,
		BBox:      domain.BoundingBox{X: 200, Y: 200, Width: 10, Height: 10},
		Color:     "#00FF00",
		Thickness: 2,
	}})
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, color.RGBAModel.Convert(color.Gray{Y: 0x40}), color.RGBAModel.Convert(img.At(49, 49)))
}

func TestRenderRejectsUndecodableSource(t *testing.T) {
	_, err := New().Render(context.Background(), []byte("not an image"), nil)
	require.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	require.Equal(t, color.RGBA{R: 0xFF, G: 0x8C, A: 0xFF}, parseHexColor("#FF8C00"))
	require.Equal(t, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}, parseHexColor("#fff"))
	require.Equal(t, fallbackColor, parseHexColor("not-a-color"))
}
