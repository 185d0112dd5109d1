package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

const (
	// MaxImageWidth is the widest image kept; larger uploads are scaled down.
	MaxImageWidth = 1600
	jpegQuality   = 85
	// MaxUploadBytes caps the raw multipart file.
	MaxUploadBytes = 10 << 20
	// MaxImagePixels caps width*height. MaxUploadBytes only bounds the
	// compressed size; a few kilobytes of PNG can declare an image that
	// needs gigabytes once decoded.
	MaxImagePixels = 40_000_000
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

var (
	ErrUnsupportedImage = errors.New("storage: unsupported image")
	ErrImageTooLarge    = errors.New("storage: image dimensions too large")
)

// ProcessedImage is an upload ready to be saved.
type ProcessedImage struct {
	Name   string
	Data   []byte
	Width  int
	Height int
}

// Reader returns a fresh reader over the encoded JPEG.
func (p *ProcessedImage) Reader() io.Reader { return bytes.NewReader(p.Data) }

// ProcessImage checks the extension of filename, decodes r, fixes EXIF
// orientation, scales it down to MaxImageWidth and re-encodes it as JPEG.
func ProcessImage(r io.Reader, filename string) (*ProcessedImage, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedImage, ext)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("storage: reading upload: %w", err)
	}

	// The header alone tells the dimensions; check them before decoding
	// allocates the pixel buffer.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	if img.Bounds().Dx() > MaxImageWidth {
		img = imaging.Resize(img, MaxImageWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("storage: encoding jpeg: %w", err)
	}

	return &ProcessedImage{
		Name:   FileName(filename),
		Data:   buf.Bytes(),
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// FileName builds a collision-free ".jpg" name that still hints at the
// original, e.g. "3f2c…-egg-salad.jpg".
func FileName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	s := slug.Make(base)
	if len(s) > 40 {
		s = strings.Trim(s[:40], "-")
	}
	if s == "" {
		return uuid.NewString() + ".jpg"
	}
	return uuid.NewString() + "-" + s + ".jpg"
}
