// Package media produces preview thumbnails for journal attachments.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxSide bounds the longest thumbnail edge in pixels.
	DefaultMaxSide = 320
	jpegQuality    = 82
)

// ErrUndecodableImage indicates that the source bytes are not a supported image.
var ErrUndecodableImage = errors.New("media: undecodable image")

// Thumbnailer scales images down to fit a square of MaxSide pixels.
type Thumbnailer struct {
	MaxSide int
}

// Thumbnail decodes data and returns the encoded thumbnail with its content
// type. JPEG sources stay JPEG; everything else is encoded as PNG. Images that
// already fit are re-encoded without scaling.
func (t Thumbnailer) Thumbnail(data []byte, contentType string) ([]byte, string, error) {
	source, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	maxSide := t.MaxSide
	if maxSide <= 0 {
		maxSide = DefaultMaxSide
	}
	width, height := fitWithin(source.Bounds().Dx(), source.Bounds().Dy(), maxSide)
	target := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(target, target.Bounds(), source, source.Bounds(), draw.Over, nil)

	var out bytes.Buffer
	if contentType == "image/jpeg" {
		if err := jpeg.Encode(&out, target, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, "", err
		}
		return out.Bytes(), "image/jpeg", nil
	}
	if err := png.Encode(&out, target); err != nil {
		return nil, "", err
	}
	return out.Bytes(), "image/png", nil
}

func fitWithin(width, height, maxSide int) (int, int) {
	if width <= 0 || height <= 0 {
		return 1, 1
	}
	if width <= maxSide && height <= maxSide {
		return width, height
	}
	if width >= height {
		scaled := height * maxSide / width
		return maxSide, max(scaled, 1)
	}
	scaled := width * maxSide / height
	return max(scaled, 1), maxSide
}
