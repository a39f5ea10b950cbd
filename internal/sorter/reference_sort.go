package sorter

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/organizer"
	"github.com/kozaktomas/face-folio/internal/progress"
)

// SortRequest names the inputs of a reference sort.
type SortRequest struct {
	Reference string // folder, image or zip of one photo per person, named after the person
	Event     string // folder, image or zip of the photos to sort
	Output    string // output root
}

// SortResult summarizes a completed reference sort.
type SortResult struct {
	People  []string
	Images  int
	Matched int
	Matches facematch.MatchMap
	Route   *organizer.RouteResult
	Errors  []facematch.ImageError
}

// ReferenceSort learns one face per reference image and copies every event image
// into a folder per recognized person, or _NoMatches.
// Temporary directories are released whether the run succeeds or fails.
func (s *Sorter) ReferenceSort(ctx context.Context, req SortRequest, report progress.Func) (*SortResult, error) {
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	report = progress.Serialize(report)
	result, err := s.referenceSort(ctx, req, report)
	if err != nil {
		return nil, err
	}
	report("Processing complete!", 1)
	return result, nil
}

func (s *Sorter) referenceSort(ctx context.Context, req SortRequest, report progress.Func) (*SortResult, error) {
	if err := validatePaths(req.Output, req.Reference, req.Event); err != nil {
		return nil, fail(StepValidate, err)
	}

	r := &run{logger: s.logger}
	defer r.release()

	report("Step 1/4: Preparing reference photos...", 0)
	refImages, err := r.resolve(req.Reference)
	if err != nil {
		return nil, fail(StepResolveReference, err)
	}

	refs, refErrors, err := facematch.BuildReferences(ctx, s.oracle, refImages,
		progress.Scale(report, 0, constants.ProgressLearnEnd, "Step 1/4: "), s.logger)
	if err != nil {
		return nil, fail(StepBuildReferences, err)
	}
	s.logger.Info("learned reference faces", "people", len(refs))

	report("Step 2/4: Preparing event photos...", constants.ProgressMatchStart)
	eventImages, err := r.resolve(req.Event)
	if err != nil {
		return nil, fail(StepResolveEvent, err)
	}
	if len(eventImages) == 0 {
		return nil, fail(StepResolveEvent, ErrNoEventImages)
	}

	matcher := facematch.NewMatcher(s.oracle, facematch.MatcherOptions{
		Tolerance:   s.opts.Tolerance,
		Mode:        s.opts.Mode,
		Concurrency: s.opts.Concurrency,
		Logger:      s.logger,
	})
	matches, matchErrors, err := matcher.MatchAll(ctx, eventImages, refs,
		progress.Scale(report, constants.ProgressMatchStart, constants.ProgressMatchEnd, "Step 3/4: "))
	if err != nil {
		return nil, fail(StepMatch, err)
	}

	report("Step 4/4: Sorting files into output folders...", constants.ProgressRouting)
	routed, err := organizer.Route(ctx, matches, req.Output, s.logger)
	if err != nil {
		return nil, fail(StepRoute, fmt.Errorf("sorting into %s: %w", req.Output, err))
	}

	errs := append(refErrors, matchErrors...)
	errs = append(errs, routed.Errors...)

	people := make([]string, len(refs))
	for i, ref := range refs {
		people[i] = ref.Name
	}
	return &SortResult{
		People:  people,
		Images:  len(eventImages),
		Matched: matches.Matched(),
		Matches: matches,
		Route:   routed,
		Errors:  errs,
	}, nil
}
