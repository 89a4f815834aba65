package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for audio handling. Validation errors reject a single
// file; corrupt-audio errors abort the task that hit them.
var (
	ErrNameTooLong       = errors.New("filename too long")
	ErrUnsupportedFormat = errors.New("unsupported music format")
	ErrCorruptAudio      = errors.New("corrupt or unsupported audio stream")
)

// MaxDisplayNameLength bounds the extension-stripped display name, counted
// in characters rather than bytes so multibyte titles are not penalized.
const MaxDisplayNameLength = 200

// Extensions accepted by the catalog, lowercase.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
)

// Validate checks an uploaded filename and derives the catalog display name.
// It returns the extension-stripped display name and the lowercase
// extension. Deterministic, no I/O.
func Validate(originalName string) (displayName, ext string, err error) {
	ext = strings.ToLower(filepath.Ext(originalName))
	displayName = strings.TrimSuffix(originalName, filepath.Ext(originalName))

	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return "", "", fmt.Errorf("%w: over %d characters: %s", ErrNameTooLong, MaxDisplayNameLength, originalName)
	}
	if ext != ExtMP3 && ext != ExtFLAC {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, originalName)
	}
	return displayName, ext, nil
}
