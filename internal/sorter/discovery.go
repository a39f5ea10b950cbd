package sorter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/progress"
)

// DiscoverRequest names the inputs of auto-discovery.
type DiscoverRequest struct {
	Event  string
	Output string
}

// PortraitDir returns the folder portraits are written to and tagged in.
func (r DiscoverRequest) PortraitDir() string {
	return filepath.Join(r.Output, constants.PortraitsDir)
}

// DiscoverResult is the outcome of the first auto-discovery phase.
// State is StepAwaitingTags, or StepCompleted when no face was found.
type DiscoverResult struct {
	State       Step
	PortraitDir string
	Portraits   []facematch.PortraitRecord
	Images      int
	Errors      []facematch.ImageError
}

// Tagger names discovered portraits between the two phases of auto-discovery,
// typically with facematch.RenamePortrait.
type Tagger interface {
	Tag(ctx context.Context, result *DiscoverResult) error
}

// TaggerFunc adapts a function to Tagger.
type TaggerFunc func(ctx context.Context, result *DiscoverResult) error

// Tag calls f.
func (f TaggerFunc) Tag(ctx context.Context, result *DiscoverResult) error {
	return f(ctx, result)
}

// Discover runs phase 1 of auto-discovery: one portrait per distinct face in the
// event input is saved to <output>/_Portraits_To_Tag as Person_<N>.jpg.
func (s *Sorter) Discover(ctx context.Context, req DiscoverRequest, report progress.Func) (*DiscoverResult, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	return s.discover(ctx, req, progress.Serialize(report))
}

func (s *Sorter) discover(ctx context.Context, req DiscoverRequest, report progress.Func) (*DiscoverResult, error) {
	if err := validatePaths(req.Output, req.Event); err != nil {
		return nil, fail(StepValidate, err)
	}

	r := &run{logger: s.logger}
	defer r.release()

	report("Step 1/2: Finding unique faces...", constants.ProgressDiscoverStart)
	images, err := r.resolve(req.Event)
	if err != nil {
		return nil, fail(StepResolveEvent, err)
	}
	if len(images) == 0 {
		return nil, fail(StepResolveEvent, ErrNoEventImages)
	}

	portraits, imgErrors, err := facematch.Discover(ctx, s.oracle, images, req.PortraitDir(), facematch.DiscoverOptions{
		Tolerance:   s.opts.Tolerance,
		Padding:     s.opts.PortraitPadding,
		Quality:     s.opts.PortraitQuality,
		Concurrency: s.opts.Concurrency,
		Logger:      s.logger,
	}, progress.Scale(report, constants.ProgressDiscoverStart, constants.ProgressDiscoverEnd, "Step 1/2: "))
	if err != nil {
		return nil, fail(StepDiscover, err)
	}

	result := &DiscoverResult{
		State:       StepAwaitingTags,
		PortraitDir: req.PortraitDir(),
		Portraits:   portraits,
		Images:      len(images),
		Errors:      imgErrors,
	}
	if len(portraits) == 0 {
		result.State = StepCompleted
		report("No unique faces were detected in the photos.", constants.ProgressDiscoverEnd)
		return result, nil
	}
	report("Step 1/2: Found unique faces. Awaiting tagging...", constants.ProgressDiscoverEnd)
	return result, nil
}

// Resume runs phase 2 of auto-discovery: a reference sort using the (tagged)
// portraits folder as reference input and the original event input.
func (s *Sorter) Resume(ctx context.Context, req DiscoverRequest, report progress.Func) (*SortResult, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	report = progress.Serialize(report)
	result, err := s.resume(ctx, req, report)
	if err != nil {
		return nil, err
	}
	report("Auto-Discovery complete!", 1)
	return result, nil
}

func (s *Sorter) resume(ctx context.Context, req DiscoverRequest, report progress.Func) (*SortResult, error) {
	report("Step 2/2: Sorting photos based on tags...", constants.ProgressResumeStart)
	return s.referenceSort(ctx, SortRequest{
		Reference: req.PortraitDir(),
		Event:     req.Event,
		Output:    req.Output,
	}, progress.Scale(report, constants.ProgressResumeStart, 1, "Step 2/2: "))
}

// AutoDiscovery runs both phases with tagger in between, holding the run for
// the whole time. When no face is found the second phase is skipped and the
// returned SortResult is nil.
func (s *Sorter) AutoDiscovery(ctx context.Context, req DiscoverRequest, tagger Tagger, report progress.Func) (*DiscoverResult, *SortResult, error) {
	done, err := s.begin()
	if err != nil {
		return nil, nil, err
	}
	defer done()

	report = progress.Serialize(report)
	discovered, err := s.discover(ctx, req, report)
	if err != nil {
		return nil, nil, err
	}
	if discovered.State == StepCompleted {
		return discovered, nil, nil
	}

	if tagger != nil {
		if err := tagger.Tag(ctx, discovered); err != nil {
			return discovered, nil, fail(StepTag, fmt.Errorf("tagging portraits: %w", err))
		}
	}

	sorted, err := s.resume(ctx, req, report)
	if err != nil {
		return discovered, nil, err
	}
	discovered.State = StepCompleted
	report("Auto-Discovery complete!", 1)
	return discovered, sorted, nil
}
