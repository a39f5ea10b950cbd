// Package sorter runs the face sorting pipelines: reference sort and the two
// phases of auto-discovery.
package sorter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/input"
	"github.com/kozaktomas/face-folio/internal/recognition"
)

var (
	// ErrNoEventImages is returned when the event input holds no images.
	ErrNoEventImages = errors.New("no valid images found in the event input")

	// ErrRunInProgress is returned when another run holds the sorter or the lock file.
	ErrRunInProgress = errors.New("another run is already in progress")

	// ErrInvalidRequest is returned when the input, reference or output paths are unusable.
	ErrInvalidRequest = errors.New("invalid request")
)

// Step identifies a pipeline stage.
type Step string

const (
	StepValidate         Step = "validate"
	StepResolveReference Step = "resolve_reference"
	StepBuildReferences  Step = "build_references"
	StepResolveEvent     Step = "resolve_event"
	StepMatch            Step = "match"
	StepRoute            Step = "route"
	StepDiscover         Step = "discover"
	StepTag              Step = "tag"
	StepAwaitingTags     Step = "awaiting_tags"
	StepCompleted        Step = "completed"
	StepFailed           Step = "failed"
)

// Failure is a fatal pipeline error: the step that failed and its cause.
type Failure struct {
	Step Step
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Step, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(step Step, err error) error {
	return &Failure{Step: step, Err: err}
}

// Options configures a Sorter.
type Options struct {
	Tolerance       float64
	Mode            facematch.MatchMode
	Concurrency     int
	PortraitPadding int
	PortraitQuality int
	LockPath        string // cross-process run lock, disabled when empty
	Logger          *slog.Logger
}

// Sorter runs one pipeline at a time against a recognition oracle.
type Sorter struct {
	oracle  recognition.Oracle
	opts    Options
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a sorter.
func New(oracle recognition.Oracle, opts Options) *Sorter {
	if opts.Tolerance <= 0 {
		opts.Tolerance = constants.DefaultTolerance
	}
	if opts.Mode == "" {
		opts.Mode = facematch.MatchFirst
	}
	if opts.PortraitPadding < 0 {
		opts.PortraitPadding = constants.DefaultPortraitPadding
	}
	if opts.PortraitQuality <= 0 {
		opts.PortraitQuality = constants.DefaultPortraitQuality
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sorter{oracle: oracle, opts: opts, logger: logger}
}

// Running reports whether a run is in progress in this process.
func (s *Sorter) Running() bool {
	return s.running.Load()
}

// begin claims the sorter for one run. The returned func releases it.
func (s *Sorter) begin() (func(), error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	if s.opts.LockPath == "" {
		return func() { s.running.Store(false) }, nil
	}

	lock := flock.New(s.opts.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		s.running.Store(false)
		return nil, fmt.Errorf("acquiring run lock %s: %w", s.opts.LockPath, err)
	}
	if !locked {
		s.running.Store(false)
		return nil, ErrRunInProgress
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release run lock", "path", s.opts.LockPath, "error", err)
		}
		s.running.Store(false)
	}, nil
}

// run tracks the resources of one pipeline run.
type run struct {
	logger   *slog.Logger
	resolved []*input.Resolved
}

// resolve resolves an input path, keeping any temporary directory for release.
func (r *run) resolve(path string) ([]string, error) {
	res, err := input.Resolve(path)
	if err != nil {
		return nil, err
	}
	r.resolved = append(r.resolved, res)
	return res.Images, nil
}

// release frees every temporary directory created during the run.
func (r *run) release() {
	for _, res := range r.resolved {
		if err := res.Release(); err != nil {
			r.logger.Warn("failed to remove temporary directory", "path", res.Temp.Path, "error", err)
		}
	}
	r.resolved = nil
}

// validatePaths checks that inputs exist and that no two paths coincide.
// The output root is created when missing.
func validatePaths(output string, inputs ...string) error {
	if output == "" {
		return fmt.Errorf("%w: output folder is required", ErrInvalidRequest)
	}
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	seen := map[string]bool{outAbs: true}
	for _, in := range inputs {
		if in == "" {
			return fmt.Errorf("%w: input path is required", ErrInvalidRequest)
		}
		abs, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("%w: %s does not exist", ErrInvalidRequest, in)
		}
		if seen[abs] {
			return fmt.Errorf("%w: reference, event and output paths must be unique", ErrInvalidRequest)
		}
		seen[abs] = true
		if info.IsDir() && isWithin(outAbs, abs) {
			return fmt.Errorf("%w: output folder must not be inside %s", ErrInvalidRequest, in)
		}
	}

	if info, err := os.Stat(outAbs); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: output %s is not a folder", ErrInvalidRequest, output)
	}
	if err := os.MkdirAll(outAbs, 0o755); err != nil {
		return fmt.Errorf("%w: creating output folder: %w", ErrInvalidRequest, err)
	}
	return nil
}

// isWithin reports whether path lies inside dir.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
