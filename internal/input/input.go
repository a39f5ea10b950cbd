// Package input normalizes a folder, a single image or a zip archive into a flat
// list of image paths.
package input

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrInvalidInputKind is returned for paths that are neither a folder,
	// an accepted image nor a zip archive.
	ErrInvalidInputKind = errors.New("input must be a folder, an image (jpg, jpeg, png, bmp) or a zip archive")

	// ErrExtraction is returned when a zip archive cannot be extracted.
	ErrExtraction = errors.New("failed to extract zip archive")
)

// acceptedExtensions lists the image extensions the pipeline processes (lowercase).
var acceptedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
}

// IsImage reports whether the path has an accepted image extension (case-insensitive).
func IsImage(path string) bool {
	_, ok := acceptedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsZip reports whether the path names a zip archive.
func IsZip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".zip")
}

// TempDir is a directory created for one pipeline run. It has a single owner
// and is removed exactly once by Release.
type TempDir struct {
	Path string

	once sync.Once
	err  error
}

// Release removes the directory. Calling it again is a no-op that returns the first result.
func (d *TempDir) Release() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.err = os.RemoveAll(d.Path)
	})
	return d.err
}

// Resolved is the outcome of resolving one input path.
type Resolved struct {
	Images []string
	Temp   *TempDir // nil unless the input was a zip archive
}

// Release frees the temporary extraction directory, if any.
func (r *Resolved) Release() error {
	if r == nil {
		return nil
	}
	return r.Temp.Release()
}

// Resolve turns an input path into absolute image paths.
// Zip archives are extracted into a new temporary directory owned by the caller.
func Resolve(path string) (*Resolved, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidInputKind, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	switch {
	case info.IsDir():
		images, err := collectImages(abs)
		if err != nil {
			return nil, err
		}
		return &Resolved{Images: images}, nil
	case IsZip(abs):
		return resolveZip(abs)
	case IsImage(abs):
		return &Resolved{Images: []string{abs}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputKind, path)
	}
}

func resolveZip(archive string) (*Resolved, error) {
	dir, err := os.MkdirTemp("", "face-folio-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating temp dir: %w", ErrExtraction, err)
	}
	temp := &TempDir{Path: dir}

	if err := extractZip(archive, dir); err != nil {
		_ = temp.Release()
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, filepath.Base(archive), err)
	}

	images, err := collectImages(dir)
	if err != nil {
		_ = temp.Release()
		return nil, err
	}
	return &Resolved{Images: images, Temp: temp}, nil
}

// collectImages walks root recursively in lexical order and returns accepted images.
func collectImages(root string) ([]string, error) {
	var images []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if IsImage(path) {
			images = append(images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	return images, nil
}
