package facematch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/progress"
	"github.com/kozaktomas/face-folio/internal/recognition"
)

// MatchMode selects which reference a face is assigned to.
type MatchMode string

const (
	// MatchFirst assigns a face to the first reference, in enumeration order,
	// within tolerance. This is the default and compatible behavior.
	MatchFirst MatchMode = "first"
	// MatchBest assigns a face to the nearest reference within tolerance.
	MatchBest MatchMode = "best"
)

// ParseMatchMode validates a match mode name.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(s) {
	case MatchFirst, MatchBest:
		return MatchMode(s), nil
	case "":
		return MatchFirst, nil
	default:
		return "", fmt.Errorf("unknown match mode: %s (supported: first, best)", s)
	}
}

// MatcherOptions configures a Matcher.
type MatcherOptions struct {
	Tolerance   float64
	Mode        MatchMode
	Concurrency int // parallel oracle calls, <= 1 means sequential
	Logger      *slog.Logger
}

// Matcher matches faces found in event images against reference entries.
type Matcher struct {
	oracle      recognition.Oracle
	tolerance   float64
	mode        MatchMode
	concurrency int
	logger      *slog.Logger
}

// NewMatcher creates a matcher.
func NewMatcher(oracle recognition.Oracle, opts MatcherOptions) *Matcher {
	if opts.Tolerance <= 0 {
		opts.Tolerance = constants.DefaultTolerance
	}
	if opts.Mode == "" {
		opts.Mode = MatchFirst
	}
	return &Matcher{
		oracle:      oracle,
		tolerance:   opts.Tolerance,
		mode:        opts.Mode,
		concurrency: min(max(opts.Concurrency, 1), constants.MaxConcurrency),
		logger:      loggerOrDefault(opts.Logger),
	}
}

// MatchAll detects faces in every image and records the distinct reference names
// matched in each. Per-image failures are logged, returned as ImageErrors and
// recorded as an empty match; the only returned error is context cancellation.
func (m *Matcher) MatchAll(ctx context.Context, images []string, refs []ReferenceEntry, report progress.Func) (MatchMap, []ImageError, error) {
	report = progress.Serialize(report)

	var index *referenceIndex
	if m.mode == MatchBest {
		index = newReferenceIndex(refs, m.oracle.Distance)
	}

	var (
		mu        sync.Mutex
		matches   = make(MatchMap, len(images))
		imgErrors []ImageError
		started   int
	)

	err := forEachImage(ctx, images, m.concurrency, func(ctx context.Context, _ int, path string) {
		filename := filepath.Base(path)
		mu.Lock()
		started++
		n := started
		mu.Unlock()
		report(fmt.Sprintf("Matching faces in %s (%d/%d)...", filename, n, len(images)), progress.Step(0, 1, n-1, len(images)))

		names, err := m.matchImage(ctx, path, refs, index)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("skipping image due to processing error", "file", filename, "error", err)
			imgErrors = append(imgErrors, ImageError{Path: path, Err: err})
		}
		matches.Add(path, names...)
		if len(names) > 0 {
			m.logger.Info("matched faces", "file", filename, "names", matches[path])
		}
	})
	if err != nil {
		return nil, nil, err
	}

	report("Matching complete", 1)
	return matches, imgErrors, nil
}

// matchImage returns the names matched by the faces of one image.
func (m *Matcher) matchImage(ctx context.Context, path string, refs []ReferenceEntry, index *referenceIndex) ([]string, error) {
	faces, err := m.oracle.Detect(ctx, path)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, face := range faces {
		var pos int
		if index != nil {
			pos = m.bestMatch(face.Embedding, index)
		} else {
			pos = m.firstMatch(face.Embedding, refs)
		}
		if pos >= 0 {
			names = append(names, refs[pos].Name)
		}
	}
	return names, nil
}

// firstMatch returns the position of the first reference within tolerance, or -1.
func (m *Matcher) firstMatch(e recognition.Embedding, refs []ReferenceEntry) int {
	for i, ref := range refs {
		if m.oracle.Distance(e, ref.Embedding) <= m.tolerance {
			return i
		}
	}
	return -1
}

// bestMatch returns the position of the nearest reference within tolerance, or -1.
// Candidates come from the index and are re-checked with the oracle distance.
func (m *Matcher) bestMatch(e recognition.Embedding, index *referenceIndex) int {
	best, bestDist := -1, m.tolerance
	for _, pos := range index.candidates(e) {
		d := m.oracle.Distance(e, index.refs[pos].Embedding)
		if d < bestDist || (d == bestDist && (best == -1 || pos < best)) {
			best, bestDist = pos, d
		}
	}
	return best
}
