package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/locamap/internal/syncerr"
)

// File validation errors
var (
	ErrInvalidMIMEType = fmt.Errorf("%w: invalid MIME type", syncerr.ErrValidation)
	ErrInvalidFileName = fmt.Errorf("%w: invalid file name", syncerr.ErrValidation)
)

// MaxFileNameLength bounds photo names, which double as storage keys.
const MaxFileNameLength = 255

// Image MIME types accepted for photos.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageGIF  = "image/gif"
	MIMEImageWebP = "image/webp"
	MIMEImageHEIC = "image/heic"
)

// AllowedImageTypes defines allowed image MIME types.
var AllowedImageTypes = []string{
	MIMEImageJPEG,
	MIMEImagePNG,
	MIMEImageGIF,
	MIMEImageWebP,
	MIMEImageHEIC,
}

// MIMEType validates a MIME type against allowed types.
// Parameters after ';' are ignored. Returns the normalized MIME type.
func MIMEType(mimeType string, allowedTypes []string) (string, error) {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))

	if mimeType == "" {
		return "", ErrEmpty
	}

	for _, allowed := range allowedTypes {
		if mimeType == allowed {
			return mimeType, nil
		}
	}

	return "", fmt.Errorf("%w: %q not in allowed types", ErrInvalidMIMEType, mimeType)
}

// FileName validates a file name used as a single object-store path segment.
// Names must be non-empty, must not contain path separators or control
// characters, and must not be "." or "..".
func FileName(name string) (string, error) {
	if name == "" {
		return "", ErrEmpty
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		return "", fmt.Errorf("%w: longer than %d chars", ErrInvalidFileName, MaxFileNameLength)
	}
	for _, r := range name {
		if r == '/' || r == '\\' || r < 0x20 || r == 0x7f {
			return "", fmt.Errorf("%w: %q", ErrInvalidFileName, name)
		}
	}
	return name, nil
}
