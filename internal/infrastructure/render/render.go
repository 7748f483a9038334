// Package render rasterizes overlay instructions onto source images. The
// default build draws with image/draw; building with -tags gocv uses OpenCV.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// Dimensions reads width and height from the image header without decoding
// pixels.
func Dimensions(data []byte) (domain.ImageDimensions, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return domain.ImageDimensions{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return domain.ImageDimensions{}, fmt.Errorf("%s image has no size", format)
	}
	return domain.ImageDimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

func pixelRect(box domain.BoundingBox) image.Rectangle {
	return image.Rect(
		int(math.Round(box.X)),
		int(math.Round(box.Y)),
		int(math.Round(box.X+box.Width)),
		int(math.Round(box.Y+box.Height)),
	)
}

var fallbackColor = color.RGBA{R: 0xFF, G: 0xD7, A: 0xFF}

// parseHexColor accepts #RRGGBB and #RGB.
func parseHexColor(raw string) color.RGBA {
	hex := strings.TrimPrefix(strings.TrimSpace(raw), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return fallbackColor
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return fallbackColor
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

func thicknessOf(ins domain.OverlayInstruction) int {
	if ins.Thickness <= 0 {
		return 1
	}
	return ins.Thickness
}
