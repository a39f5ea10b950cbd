// Package organizer copies matched event images into per-person output folders.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
)

// RouteResult summarizes one routing pass.
type RouteResult struct {
	Copied    int            `json:"copied"`
	Skipped   int            `json:"skipped"` // destination already existed
	PerPerson map[string]int `json:"per_person"`
	Unmatched int            `json:"unmatched"`

	// Errors lists the images that could not be copied.
	Errors []facematch.ImageError `json:"-"`
}

// Route copies every image in matches into outputRoot/<Name>/ for each matched
// name, or into outputRoot/_NoMatches/ when nothing matched. Existing
// destinations are left alone, so routing the same matches twice is a no-op.
// Sources are never modified. A failed copy is recorded in the result and the
// remaining images are still routed; only folder creation errors abort.
func Route(ctx context.Context, matches facematch.MatchMap, outputRoot string, logger *slog.Logger) (*RouteResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	noMatchDir := filepath.Join(outputRoot, constants.NoMatchesDir)
	if err := os.MkdirAll(noMatchDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", constants.NoMatchesDir, err)
	}

	images := make([]string, 0, len(matches))
	for path := range matches {
		images = append(images, path)
	}
	slices.Sort(images)

	result := &RouteResult{PerPerson: make(map[string]int)}
	for _, src := range images {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		names := matches[src]
		if len(names) == 0 {
			result.Unmatched++
			result.place(src, noMatchDir, logger)
			continue
		}

		for _, name := range names {
			dir := filepath.Join(outputRoot, name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return result, fmt.Errorf("creating folder for %s: %w", name, err)
			}
			if result.place(src, dir, logger) {
				result.PerPerson[name]++
			}
		}
	}

	logger.Info("sorting complete", "copied", result.Copied, "skipped", result.Skipped,
		"unmatched", result.Unmatched, "failed", len(result.Errors))
	return result, nil
}

// place copies src into dir under its base name unless the destination exists.
// It reports whether the image is present in dir afterwards.
func (r *RouteResult) place(src, dir string, logger *slog.Logger) bool {
	dst := filepath.Join(dir, filepath.Base(src))
	err := copyFile(src, dst)
	switch {
	case errors.Is(err, os.ErrExist):
		r.Skipped++
		logger.Debug("destination exists, skipping", "file", dst)
		return true
	case err != nil:
		logger.Warn("copying image failed", "file", filepath.Base(src), "folder", filepath.Base(dir), "error", err)
		r.Errors = append(r.Errors, facematch.ImageError{Path: src, Err: fmt.Errorf("copying into %s: %w", filepath.Base(dir), err)})
		return false
	}
	r.Copied++
	return true
}
