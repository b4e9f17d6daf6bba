// Package validate provides input validation for user-supplied location,
// comment and photo data. Every error returned wraps syncerr.ErrValidation so
// rejected commands classify as ValidationRejected.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/locamap/internal/syncerr"
)

// String validation errors
var (
	ErrEmpty         = fmt.Errorf("%w: string is empty", syncerr.ErrValidation)
	ErrStringTooLong = fmt.Errorf("%w: string is too long", syncerr.ErrValidation)
	ErrControlChars  = fmt.Errorf("%w: string contains control characters", syncerr.ErrValidation)
)

// Length limits for user text.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 5000
	MaxCommentLength     = 2000
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MaxLength     int  // Maximum length in runes (0 = no maximum)
	AllowEmpty    bool // Whether empty strings are allowed
	AllowNewlines bool // Whether \n and \r\n are accepted
}

// String trims s and validates it against the given constraints.
// Returns the trimmed string and an error if validation fails.
func String(s string, constraints StringConstraints) (string, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	length := utf8.RuneCountInString(s)
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			if constraints.AllowNewlines {
				continue
			}
			return "", ErrControlChars
		}
		if r < 0x20 || r == 0x7f {
			return "", ErrControlChars
		}
	}

	return s, nil
}

// LocationName validates a location name: required, single line, at most
// MaxNameLength characters.
func LocationName(name string) (string, error) {
	return String(name, StringConstraints{MaxLength: MaxNameLength})
}

// Description validates a location description: required, multi-line allowed.
func Description(desc string) (string, error) {
	return String(desc, StringConstraints{MaxLength: MaxDescriptionLength, AllowNewlines: true})
}

// CommentText validates comment text: required, multi-line allowed.
func CommentText(text string) (string, error) {
	return String(text, StringConstraints{MaxLength: MaxCommentLength, AllowNewlines: true})
}
