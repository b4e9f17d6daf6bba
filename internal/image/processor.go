// Package image strips EXIF/GPS metadata from uploaded photos before they are
// stored.
package image

import (
	"errors"
	"fmt"

	"github.com/h2non/bimg"

	"github.com/onnwee/locamap/internal/validate"
)

// ErrUnreadable is returned when the bytes are not a decodable image.
var ErrUnreadable = errors.New("unreadable image")

// Config holds sanitizer settings.
type Config struct {
	// Quality for JPEG/WebP re-encoding (1-100, default 85).
	Quality int

	// MaxDimension bounds width and height, keeping aspect ratio. Zero
	// disables resizing.
	MaxDimension int
}

// DefaultConfig returns the settings used for location photos.
func DefaultConfig() Config {
	return Config{Quality: 85}
}

// Sanitizer re-encodes photos without metadata.
type Sanitizer struct {
	cfg Config
}

// NewSanitizer creates a sanitizer.
func NewSanitizer(cfg Config) *Sanitizer {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultConfig().Quality
	}
	return &Sanitizer{cfg: cfg}
}

// Sanitize strips all metadata and re-encodes data. JPEG, PNG and WebP keep
// their format; anything else becomes JPEG. The returned content type
// describes the output bytes.
func (s *Sanitizer) Sanitize(data []byte) ([]byte, string, error) {
	img := bimg.NewImage(data)
	meta, err := img.Metadata()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}

	outType, mime := outputType(meta.Type)
	opts := bimg.Options{
		Quality:       s.cfg.Quality,
		StripMetadata: true,
		Type:          outType,
	}

	if m := s.cfg.MaxDimension; m > 0 && (meta.Size.Width > m || meta.Size.Height > m) {
		if meta.Size.Width >= meta.Size.Height {
			opts.Width = m
		} else {
			opts.Height = m
		}
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, "", fmt.Errorf("process image: %w", err)
	}
	return out, mime, nil
}

func outputType(t string) (bimg.ImageType, string) {
	switch t {
	case "png":
		return bimg.PNG, validate.MIMEImagePNG
	case "webp":
		return bimg.WEBP, validate.MIMEImageWebP
	default:
		return bimg.JPEG, validate.MIMEImageJPEG
	}
}

// HasEXIF reports whether identifying EXIF fields are present.
func HasEXIF(data []byte) (bool, error) {
	meta, err := bimg.NewImage(data).Metadata()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	exif := meta.EXIF
	return exif.Make != "" || exif.Model != "" ||
		exif.GPSLatitude != "" || exif.GPSLongitude != "" ||
		exif.DateTimeOriginal != "" || exif.Software != "", nil
}
