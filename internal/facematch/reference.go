package facematch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-folio/internal/progress"
	"github.com/kozaktomas/face-folio/internal/recognition"
)

// PersonName derives a person's name from an image path (file stem).
func PersonName(imagePath string) string {
	base := filepath.Base(imagePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// BuildReferences learns one embedding per reference image: the first detected face.
// Images without faces or failing detection are skipped with a warning.
// When two images share a stem, the later embedding replaces the earlier one
// and keeps the earlier position.
func BuildReferences(ctx context.Context, oracle recognition.Oracle, images []string, report progress.Func, logger *slog.Logger) ([]ReferenceEntry, []ImageError, error) {
	if len(images) == 0 {
		return nil, nil, ErrNoReferenceImages
	}
	if report == nil {
		report = progress.Nop
	}
	logger = loggerOrDefault(logger)

	var (
		entries   []ReferenceEntry
		imgErrors []ImageError
		positions = make(map[string]int)
		seen      = make(map[string]string) // normalized -> name
	)

	for i, path := range images {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		name := PersonName(path)
		report(fmt.Sprintf("Learning %s (%d/%d)...", name, i+1, len(images)), progress.Step(0, 1, i, len(images)))

		faces, err := oracle.Detect(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			logger.Warn("skipping reference image", "path", path, "error", err)
			imgErrors = append(imgErrors, ImageError{Path: path, Err: err})
			continue
		}
		if len(faces) == 0 {
			logger.Warn("no face found in reference image, skipping", "file", filepath.Base(path))
			continue
		}

		if pos, ok := positions[name]; ok {
			logger.Warn("duplicate reference name, replacing earlier entry", "name", name, "path", path)
			entries[pos].Embedding = faces[0].Embedding
			continue
		}
		if other, ok := seen[nameKey(name)]; ok {
			logger.Warn("reference names differ only in case, accents or separators", "name", name, "other", other)
		}

		positions[name] = len(entries)
		seen[nameKey(name)] = name
		entries = append(entries, ReferenceEntry{Name: name, Embedding: faces[0].Embedding})
		logger.Debug("learned face", "name", name)
	}

	if len(entries) == 0 {
		return nil, imgErrors, ErrNoFacesLearned
	}
	report(fmt.Sprintf("Learned %d people", len(entries)), 1)
	logger.Info("finished learning reference faces", "people", len(entries))
	return entries, imgErrors, nil
}
