// Package avatar normalizes uploaded profile pictures into fixed-size PNGs.
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// MaxUploadSize is the largest accepted upload, in bytes.
	MaxUploadSize = 1_000_000
	// Size is the edge length, in pixels, of every stored avatar.
	Size = 250
	// MaxPixels bounds the decoded area of an upload.
	MaxPixels = 25_000_000
)

var (
	ErrInvalidUpload = errors.New("please upload a jpg, jpeg or png image under 1MB")
	ErrUndecodable   = fmt.Errorf("%w: image could not be decoded", ErrInvalidUpload)
	ErrTooManyPixels = fmt.Errorf("%w: image dimensions are too large", ErrInvalidUpload)
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Validate checks the upload constraints without touching the image data.
func Validate(filename string, size int64) error {
	if size > MaxUploadSize {
		return ErrInvalidUpload
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return ErrInvalidUpload
	}
	return nil
}

// Normalize decodes an uploaded image, scales and center-crops it to
// Size x Size and re-encodes it as PNG.
func Normalize(filename string, data []byte) ([]byte, error) {
	if err := Validate(filename, int64(len(data))); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUndecodable
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, ErrTooManyPixels
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrUndecodable
	}

	dst := imaging.Fill(src, Size, Size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encoding avatar: %w", err)
	}
	return buf.Bytes(), nil
}
