package validate

import (
	"errors"
	"strings"
	"testing"

	"github.com/onnwee/locamap/internal/syncerr"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		wantErr     error
		wantOutput  string
	}{
		{
			name:        "valid string is trimmed",
			input:       "  Gyeongbokgung  ",
			constraints: StringConstraints{MaxLength: 20},
			wantOutput:  "Gyeongbokgung",
		},
		{
			name:        "string too long",
			input:       strings.Repeat("a", 101),
			constraints: StringConstraints{MaxLength: 100},
			wantErr:     ErrStringTooLong,
		},
		{
			name:    "empty string not allowed",
			input:   "   ",
			wantErr: ErrEmpty,
		},
		{
			name:        "empty string allowed",
			input:       "",
			constraints: StringConstraints{AllowEmpty: true},
			wantOutput:  "",
		},
		{
			name:    "newline rejected on single line",
			input:   "line one\nline two",
			wantErr: ErrControlChars,
		},
		{
			name:        "newline accepted when allowed",
			input:       "line one\nline two",
			constraints: StringConstraints{AllowNewlines: true},
			wantOutput:  "line one\nline two",
		},
		{
			name:        "null byte rejected",
			input:       "bad\x00name",
			constraints: StringConstraints{AllowNewlines: true},
			wantErr:     ErrControlChars,
		},
		{
			name:        "length counts runes",
			input:       "서울특별시",
			constraints: StringConstraints{MaxLength: 5},
			wantOutput:  "서울특별시",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("String() error = %v, want %v", err, tt.wantErr)
				}
				if !errors.Is(err, syncerr.ErrValidation) {
					t.Errorf("String() error %v does not wrap ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("String() unexpected error = %v", err)
			}
			if got != tt.wantOutput {
				t.Errorf("String() = %q, want %q", got, tt.wantOutput)
			}
		})
	}
}

func TestLocationName(t *testing.T) {
	if _, err := LocationName(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("LocationName(\"\") error = %v, want ErrEmpty", err)
	}
	if _, err := LocationName(strings.Repeat("x", MaxNameLength+1)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
	got, err := LocationName(" Namsan Tower ")
	if err != nil || got != "Namsan Tower" {
		t.Errorf("LocationName() = %q, %v", got, err)
	}
}

func TestCommentText(t *testing.T) {
	if _, err := CommentText("\n\t "); !errors.Is(err, ErrEmpty) {
		t.Errorf("whitespace-only comment should be empty, got %v", err)
	}
	if _, err := CommentText("great view\nwould visit again"); err != nil {
		t.Errorf("multi-line comment rejected: %v", err)
	}
}
