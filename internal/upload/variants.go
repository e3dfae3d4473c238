package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	// Decoders for the formats phones and browsers send.
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Longest edge of each variant, in pixels.
const (
	ThumbnailSize = 256
	OptimizedSize = 1600
)

const jpegQuality = 85

// MaxPixels bounds width×height of an upload so a small file with a huge
// header cannot force a huge decode.
const MaxPixels = 40_000_000

// Variants are the encoded images stored for one upload.
type Variants struct {
	Thumbnail []byte
	Optimized []byte
}

// MakeVariants decodes an image and produces the thumbnail and optimized
// JPEG variants. Images are never scaled up.
func MakeVariants(r io.Reader) (*Variants, error) {
	return makeVariants(r, MaxPixels)
}

func makeVariants(r io.Reader, maxPixels int) (*Variants, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, fmt.Errorf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	src, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb, err := encode(scale(src, ThumbnailSize, draw.ApproxBiLinear))
	if err != nil {
		return nil, err
	}
	optimized, err := encode(scale(src, OptimizedSize, draw.CatmullRom))
	if err != nil {
		return nil, err
	}
	return &Variants{Thumbnail: thumb, Optimized: optimized}, nil
}

func scale(src image.Image, maxEdge int, scaler draw.Scaler) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		w, h = max(w, 1), max(h, 1)
	} else if w >= h {
		h = max(h*maxEdge/w, 1)
		w = maxEdge
	} else {
		w = max(w*maxEdge/h, 1)
		h = maxEdge
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
