// Package facematch builds reference databases, matches event faces against them
// and discovers unique faces for tagging.
package facematch

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kozaktomas/face-folio/internal/recognition"
)

var (
	// ErrNoReferenceImages is returned when the reference input contains no images.
	ErrNoReferenceImages = errors.New("no valid images found in the reference input")

	// ErrNoFacesLearned is returned when no reference image yielded a face.
	ErrNoFacesLearned = errors.New("no faces were learned, check your reference input")
)

// ReferenceEntry is a learned (person name, embedding) pair.
type ReferenceEntry struct {
	Name      string
	Embedding recognition.Embedding
}

// MatchMap maps an event image path to the distinct names recognized in it.
// Images without a match map to an empty, non-nil slice.
type MatchMap map[string][]string

// Add records the names matched in an image, deduplicated and sorted.
func (m MatchMap) Add(image string, names ...string) {
	set := append(m[image], names...)
	if set == nil {
		set = []string{}
	}
	slices.Sort(set)
	m[image] = slices.Compact(set)
}

// Matched returns the number of images with at least one name.
func (m MatchMap) Matched() int {
	n := 0
	for _, names := range m {
		if len(names) > 0 {
			n++
		}
	}
	return n
}

// PortraitRecord is one discovered face saved for tagging.
// Index is the discovery order; tagging renames Path only.
type PortraitRecord struct {
	Index     int                   `json:"index"`
	Path      string                `json:"path"`
	Embedding recognition.Embedding `json:"-"`
}

// ImageError is a non-fatal failure processing one image.
type ImageError struct {
	Path string
	Err  error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
