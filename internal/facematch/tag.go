package facematch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kozaktomas/face-folio/internal/constants"
)

var (
	// ErrEmptyName is returned when a tag has no usable characters.
	ErrEmptyName = errors.New("please enter a name or skip the portrait")

	// ErrNameTaken is returned when another portrait already uses the name.
	ErrNameTaken = errors.New("a portrait with this name already exists")
)

// SanitizeName keeps letters, digits, spaces, underscores and dashes and trims
// surrounding whitespace.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// RenamePortrait tags a portrait with a person's name by renaming its file to
// <name>.jpg in the same directory. Index and embedding are unchanged.
// An existing file with that name is only replaced when overwrite is set.
func RenamePortrait(rec PortraitRecord, name string, overwrite bool) (PortraitRecord, error) {
	name = SanitizeName(name)
	if name == "" {
		return rec, ErrEmptyName
	}

	newPath := filepath.Join(filepath.Dir(rec.Path), name+constants.PortraitExt)
	if newPath == rec.Path {
		return rec, nil
	}
	if _, err := os.Stat(newPath); err == nil && !overwrite {
		return rec, fmt.Errorf("%w: %s", ErrNameTaken, filepath.Base(newPath))
	}

	if err := os.Rename(rec.Path, newPath); err != nil {
		return rec, fmt.Errorf("renaming portrait: %w", err)
	}
	rec.Path = newPath
	return rec, nil
}
