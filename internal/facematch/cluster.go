package facematch

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/progress"
	"github.com/kozaktomas/face-folio/internal/recognition"
)

// Clusterer groups faces greedily in a single pass. The first face of a cluster
// is its representative for good: representatives are never averaged, moved or
// merged, and the number of clusters never decreases.
type Clusterer struct {
	distance  func(a, b recognition.Embedding) float64
	tolerance float64
	known     []recognition.Embedding
}

// NewClusterer creates an empty clusterer.
func NewClusterer(distance func(a, b recognition.Embedding) float64, tolerance float64) *Clusterer {
	return &Clusterer{distance: distance, tolerance: tolerance}
}

// Match returns the first cluster within tolerance of e, or -1 when e is a new face.
func (c *Clusterer) Match(e recognition.Embedding) int {
	for i, k := range c.known {
		if c.distance(e, k) <= c.tolerance {
			return i
		}
	}
	return -1
}

// Add starts a new cluster represented by e and returns its index.
func (c *Clusterer) Add(e recognition.Embedding) int {
	c.known = append(c.known, slices.Clone(e))
	return len(c.known) - 1
}

// Observe matches e and starts a new cluster when nothing matches.
func (c *Clusterer) Observe(e recognition.Embedding) (index int, isNew bool) {
	if i := c.Match(e); i >= 0 {
		return i, false
	}
	return c.Add(e), true
}

// Len returns the number of clusters.
func (c *Clusterer) Len() int {
	return len(c.known)
}

// Representative returns a copy of the embedding representing cluster i.
func (c *Clusterer) Representative(i int) recognition.Embedding {
	return slices.Clone(c.known[i])
}

// DiscoverOptions configures Discover.
type DiscoverOptions struct {
	Tolerance   float64
	Padding     int // pixels around the face box
	Quality     int // JPEG quality of portraits
	Concurrency int // parallel detection, clustering stays in input order
	Logger      *slog.Logger
}

// detection is the oracle output for one image.
type detection struct {
	faces []recognition.Face
	err   error
}

// Discover finds the distinct faces across images and saves one portrait per
// person as Person_<N>.jpg in portraitDir, which is emptied first.
// Portraits are returned in discovery order. Per-image failures are logged and skipped.
func Discover(ctx context.Context, oracle recognition.Oracle, images []string, portraitDir string, opts DiscoverOptions, report progress.Func) ([]PortraitRecord, []ImageError, error) {
	report = progress.Serialize(report)
	logger := loggerOrDefault(opts.Logger)
	if opts.Tolerance <= 0 {
		opts.Tolerance = constants.DefaultTolerance
	}

	if err := os.RemoveAll(portraitDir); err != nil {
		return nil, nil, fmt.Errorf("clearing portraits directory: %w", err)
	}
	if err := os.MkdirAll(portraitDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating portraits directory: %w", err)
	}

	d := &discovery{
		oracle:      oracle,
		clusterer:   NewClusterer(oracle.Distance, opts.Tolerance),
		portraitDir: portraitDir,
		opts:        opts,
		logger:      logger,
	}

	var err error
	if opts.Concurrency > 1 {
		err = d.runParallel(ctx, images, report)
	} else {
		err = d.runSequential(ctx, images, report)
	}
	if err != nil {
		return nil, nil, err
	}

	report(fmt.Sprintf("Found %d unique faces", len(d.records)), 1)
	logger.Info("discovery finished", "images", len(images), "portraits", len(d.records))
	return d.records, d.imgErrors, nil
}

type discovery struct {
	oracle      recognition.Oracle
	clusterer   *Clusterer
	portraitDir string
	opts        DiscoverOptions
	logger      *slog.Logger

	records   []PortraitRecord
	imgErrors []ImageError
}

func (d *discovery) runSequential(ctx context.Context, images []string, report progress.Func) error {
	for i, path := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		report(fmt.Sprintf("Finding unique faces in %s (%d/%d)...", filepath.Base(path), i+1, len(images)), progress.Step(0, 1, i, len(images)))

		faces, err := d.oracle.Detect(ctx, path)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		d.cluster(path, detection{faces: faces, err: err})
	}
	return nil
}

// runParallel detects faces concurrently, then clusters the results in input
// order so the outcome matches a sequential run.
func (d *discovery) runParallel(ctx context.Context, images []string, report progress.Func) error {
	results := make([]detection, len(images))
	var (
		mu   sync.Mutex
		done int
	)
	concurrency := min(d.opts.Concurrency, constants.MaxConcurrency)
	err := forEachImage(ctx, images, concurrency, func(ctx context.Context, i int, path string) {
		faces, err := d.oracle.Detect(ctx, path)
		results[i] = detection{faces: faces, err: err}

		mu.Lock()
		done++
		n := done
		mu.Unlock()
		report(fmt.Sprintf("Finding unique faces in %s (%d/%d)...", filepath.Base(path), n, len(images)), progress.Step(0, 1, n-1, len(images)))
	})
	if err != nil {
		return err
	}

	for i, path := range images {
		d.cluster(path, results[i])
	}
	return nil
}

// cluster assigns the faces of one image, saving a portrait for every new face.
func (d *discovery) cluster(path string, det detection) {
	if det.err != nil {
		d.skip(path, det.err)
		return
	}

	var img image.Image
	for _, face := range det.faces {
		if d.clusterer.Match(face.Embedding) >= 0 {
			continue
		}
		if img == nil {
			var err error
			if img, err = loadUpright(path); err != nil {
				d.skip(path, err)
				return
			}
		}

		index := d.clusterer.Len()
		portrait, err := cropFace(img, face.Box, d.opts.Padding)
		if err == nil {
			err = savePortrait(filepath.Join(d.portraitDir, PortraitFilename(index)), portrait, d.opts.Quality)
		}
		if err != nil {
			d.skip(path, err)
			return
		}

		d.clusterer.Add(face.Embedding)
		d.records = append(d.records, PortraitRecord{
			Index:     index,
			Path:      filepath.Join(d.portraitDir, PortraitFilename(index)),
			Embedding: d.clusterer.Representative(index),
		})
		d.logger.Info("found new unique face", "portrait", PortraitFilename(index), "file", filepath.Base(path))
	}
}

func (d *discovery) skip(path string, err error) {
	d.logger.Warn("skipping image due to processing error", "file", filepath.Base(path), "error", err)
	d.imgErrors = append(d.imgErrors, ImageError{Path: path, Err: err})
}
