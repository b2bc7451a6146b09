package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path"

	"github.com/andresmejia3/sentinel-home/internal/engine"
	"github.com/andresmejia3/sentinel-home/internal/types"
	"golang.org/x/image/draw"
)

// ErrNoFrame is returned when a capture carries no image bytes.
var ErrNoFrame = errors.New("capture has no frame")

const (
	DefaultMaxSize = 1280
	DefaultPrefix  = "visitors"
	jpegQuality    = 85
)

// Uploader is the write side of the remote bucket.
type Uploader interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	PublicURL(path string) string
}

// Evidence crops a capture to the face with some context, downscales it and uploads it.
type Evidence struct {
	uploader Uploader
	prefix   string
	maxSize  int
}

// NewEvidence returns an evidence store writing under prefix. Non-positive maxSize uses DefaultMaxSize.
func NewEvidence(uploader Uploader, prefix string, maxSize int) *Evidence {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Evidence{uploader: uploader, prefix: prefix, maxSize: maxSize}
}

// Store uploads the capture's frame and returns its public URL.
func (e *Evidence) Store(ctx context.Context, c engine.Capture) (string, error) {
	if len(c.Frame) == 0 {
		return "", ErrNoFrame
	}
	data, err := Prepare(c.Frame, c.Box, e.maxSize)
	if err != nil {
		return "", err
	}
	p := path.Join(e.prefix, c.FilenameHint)
	if err := e.uploader.Upload(ctx, p, data, "image/jpeg"); err != nil {
		return "", err
	}
	return e.uploader.PublicURL(p), nil
}

// Prepare decodes a JPEG frame, crops it around box (padded by the box size on each
// side) and scales it to fit within maxSize. An empty box keeps the whole frame.
func Prepare(frame []byte, box types.Box, maxSize int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	if !box.Empty() {
		w, h := box.Right-box.Left, box.Bottom-box.Top
		crop := image.Rect(box.Left-w, box.Top-h, box.Right+w, box.Bottom+h).Intersect(bounds)
		if !crop.Empty() {
			bounds = crop
		}
	}

	width, height := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := width, height
	if width > maxSize || height > maxSize {
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(out, out.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode evidence: %w", err)
	}
	return buf.Bytes(), nil
}
