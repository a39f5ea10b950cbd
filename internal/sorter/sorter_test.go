package sorter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	"github.com/kozaktomas/face-folio/internal/facematch"
	"github.com/kozaktomas/face-folio/internal/input"
	"github.com/kozaktomas/face-folio/internal/recognition"
	"github.com/kozaktomas/face-folio/internal/recognition/mock"
)

var (
	faceA = recognition.Embedding{0, 0}
	faceB = recognition.Embedding{10, 0}
)

func writePNG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := range 40 {
		for x := range 40 {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 6), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, names ...string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(name)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected %s to be empty, found %v", dir, names)
	}
}

// recorder collects progress reports.
type recorder struct {
	messages  []string
	fractions []float64
}

func (r *recorder) report(message string, fraction float64) {
	r.messages = append(r.messages, message)
	r.fractions = append(r.fractions, fraction)
}

func (r *recorder) check(t *testing.T, min float64) {
	t.Helper()
	if len(r.fractions) == 0 {
		t.Fatal("no progress reported")
	}
	for i, f := range r.fractions {
		if f < min || f > 1 {
			t.Errorf("fraction %v out of range at %d (%s)", f, i, r.messages[i])
		}
		if i > 0 && f < r.fractions[i-1] {
			t.Errorf("progress went backwards at %d: %v -> %v", i, r.fractions[i-1], f)
		}
	}
	if last := r.fractions[len(r.fractions)-1]; last != 1 {
		t.Errorf("final fraction = %v, want 1", last)
	}
}

func (r *recorder) contains(prefix string) bool {
	for _, m := range r.messages {
		if strings.HasPrefix(m, prefix) {
			return true
		}
	}
	return false
}

func referenceOracle() *mock.Oracle {
	return mock.NewOracle().
		AddEmbeddings("Alice.png", faceA).
		AddEmbeddings("Bob.png", faceB).
		AddEmbeddings("photo1.jpg", recognition.Embedding{0.1, 0}).
		AddEmbeddings("photo2.jpg", recognition.Embedding{0.2, 0}, recognition.Embedding{10.2, 0})
}

func TestReferenceSort(t *testing.T) {
	root := t.TempDir()
	ref := filepath.Join(root, "ref")
	event := filepath.Join(root, "event")
	out := filepath.Join(root, "out")
	writePNG(t, filepath.Join(ref, "Alice.png"))
	writePNG(t, filepath.Join(ref, "Bob.png"))
	for _, name := range []string{"photo1.jpg", "photo2.jpg", "photo3.jpg"} {
		writePNG(t, filepath.Join(event, name))
	}

	s := New(referenceOracle(), Options{})
	rec := &recorder{}
	result, err := s.ReferenceSort(context.Background(), SortRequest{Reference: ref, Event: event, Output: out}, rec.report)
	if err != nil {
		t.Fatalf("ReferenceSort() error: %v", err)
	}

	assertExists(t, filepath.Join(out, "Alice", "photo1.jpg"))
	assertExists(t, filepath.Join(out, "Alice", "photo2.jpg"))
	assertExists(t, filepath.Join(out, "Bob", "photo2.jpg"))
	assertExists(t, filepath.Join(out, "_NoMatches", "photo3.jpg"))

	if result.Images != 3 || result.Matched != 2 {
		t.Errorf("unexpected counts: images=%d matched=%d", result.Images, result.Matched)
	}
	if len(result.People) != 2 {
		t.Errorf("expected 2 people, got %v", result.People)
	}
	if result.Route.Copied != 4 {
		t.Errorf("expected 4 copies, got %d", result.Route.Copied)
	}

	rec.check(t, 0)
	for _, prefix := range []string{"Step 1/4: Learning Alice", "Step 3/4: Matching faces in", "Step 4/4: Sorting files", "Processing complete!"} {
		if !rec.contains(prefix) {
			t.Errorf("missing progress message %q", prefix)
		}
	}
	if s.Running() {
		t.Error("sorter should be idle after the run")
	}
}

func TestReferenceSort_ZipReleasesTempDir(t *testing.T) {
	tmp := t.TempDir()
	root := t.TempDir()
	ref := filepath.Join(root, "ref")
	writePNG(t, filepath.Join(ref, "Alice.png"))
	writePNG(t, filepath.Join(ref, "Bob.png"))
	eventZip := filepath.Join(root, "event.zip")
	writeZip(t, eventZip, "photo1.jpg", "photo2.jpg", "readme.txt")
	out := filepath.Join(root, "out")

	t.Setenv("TMPDIR", tmp)

	s := New(referenceOracle(), Options{})
	result, err := s.ReferenceSort(context.Background(), SortRequest{Reference: ref, Event: eventZip, Output: out}, nil)
	if err != nil {
		t.Fatalf("ReferenceSort() error: %v", err)
	}
	if result.Images != 2 {
		t.Errorf("expected 2 event images, got %d", result.Images)
	}
	assertExists(t, filepath.Join(out, "Alice", "photo1.jpg"))
	assertExists(t, filepath.Join(out, "Bob", "photo2.jpg"))
	assertEmptyDir(t, tmp)
}

func TestReferenceSort_FailureReleasesTempDirs(t *testing.T) {
	tmp := t.TempDir()
	root := t.TempDir()
	refZip := filepath.Join(root, "ref.zip")
	writeZip(t, refZip, "Nobody.png")
	event := filepath.Join(root, "event")
	writePNG(t, filepath.Join(event, "photo1.jpg"))

	t.Setenv("TMPDIR", tmp)

	s := New(referenceOracle(), Options{})
	_, err := s.ReferenceSort(context.Background(), SortRequest{Reference: refZip, Event: event, Output: filepath.Join(root, "out")}, nil)

	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Step != StepBuildReferences {
		t.Errorf("failed step = %s, want %s", failure.Step, StepBuildReferences)
	}
	if !errors.Is(err, facematch.ErrNoFacesLearned) {
		t.Errorf("expected ErrNoFacesLearned, got %v", err)
	}
	assertEmptyDir(t, tmp)
}

func TestReferenceSort_Failures(t *testing.T) {
	root := t.TempDir()
	ref := filepath.Join(root, "ref")
	writePNG(t, filepath.Join(ref, "Alice.png"))
	emptyEvent := filepath.Join(root, "empty")
	if err := os.MkdirAll(emptyEvent, 0o755); err != nil {
		t.Fatal(err)
	}
	event := filepath.Join(root, "event")
	writePNG(t, filepath.Join(event, "photo1.jpg"))
	textEvent := filepath.Join(root, "notes.txt")
	if err := os.WriteFile(textEvent, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		req     SortRequest
		step    Step
		wantErr error
	}{
		{"no event images", SortRequest{ref, emptyEvent, filepath.Join(root, "out1")}, StepResolveEvent, ErrNoEventImages},
		{"invalid event kind", SortRequest{ref, textEvent, filepath.Join(root, "out2")}, StepResolveEvent, input.ErrInvalidInputKind},
		{"missing reference", SortRequest{filepath.Join(root, "missing"), event, filepath.Join(root, "out3")}, StepValidate, ErrInvalidRequest},
		{"same paths", SortRequest{ref, ref, filepath.Join(root, "out4")}, StepValidate, ErrInvalidRequest},
		{"event equals output", SortRequest{ref, event, event}, StepValidate, ErrInvalidRequest},
		{"output inside event", SortRequest{ref, event, filepath.Join(event, "sorted")}, StepValidate, ErrInvalidRequest},
		{"no output", SortRequest{ref, event, ""}, StepValidate, ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(referenceOracle(), Options{})
			_, err := s.ReferenceSort(context.Background(), tt.req, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var failure *Failure
			if !errors.As(err, &failure) || failure.Step != tt.step {
				t.Errorf("expected failure at %s, got %v", tt.step, err)
			}
			if s.Running() {
				t.Error("sorter should be idle after a failed run")
			}
		})
	}
}

func TestReferenceSort_Cancelled(t *testing.T) {
	root := t.TempDir()
	ref := filepath.Join(root, "ref")
	writePNG(t, filepath.Join(ref, "Alice.png"))
	event := filepath.Join(root, "event")
	writePNG(t, filepath.Join(event, "photo1.jpg"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(referenceOracle(), Options{}).ReferenceSort(ctx, SortRequest{ref, event, filepath.Join(root, "out")}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSorter_RunInProgress(t *testing.T) {
	s := New(referenceOracle(), Options{})
	s.running.Store(true)

	_, err := s.ReferenceSort(context.Background(), SortRequest{}, nil)
	if !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := s.Discover(context.Background(), DiscoverRequest{}, nil); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress from Discover, got %v", err)
	}
}

func TestSorter_LockFile(t *testing.T) {
	root := t.TempDir()
	lockPath := filepath.Join(root, "face-folio.lock")

	held := flock.New(lockPath)
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("failed to take lock: %v", err)
	}

	s := New(referenceOracle(), Options{LockPath: lockPath})
	if _, err := s.Resume(context.Background(), DiscoverRequest{}, nil); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("expected ErrRunInProgress while the lock is held, got %v", err)
	}
	if s.Running() {
		t.Error("a refused run must not leave the sorter busy")
	}

	if err := held.Unlock(); err != nil {
		t.Fatal(err)
	}
	done, err := s.begin()
	if err != nil {
		t.Fatalf("begin() after unlock: %v", err)
	}
	done()
}

// discoveryFixture writes five event photos with two people:
// A in img1, img2 and img5, B in img2 and img4, nobody in img3.
func discoveryFixture(t *testing.T) (*mock.Oracle, string, string) {
	t.Helper()
	root := t.TempDir()
	event := filepath.Join(root, "event")
	for i := 1; i <= 5; i++ {
		writePNG(t, filepath.Join(event, fmt.Sprintf("img%d.png", i)))
	}
	oracle := mock.NewOracle().
		AddEmbeddings("img1.png", faceA).
		AddEmbeddings("img2.png", recognition.Embedding{0.2, 0}, faceB).
		AddEmbeddings("img4.png", recognition.Embedding{10.3, 0}).
		AddEmbeddings("img5.png", recognition.Embedding{0.1, 0.1}).
		// portraits as seen in phase 2
		AddEmbeddings("Person_0.jpg", faceA).
		AddEmbeddings("Person_1.jpg", faceB).
		AddEmbeddings("Alice.jpg", faceA).
		AddEmbeddings("Bob.jpg", faceB)
	return oracle, event, filepath.Join(root, "out")
}

func TestDiscoverAndResume(t *testing.T) {
	oracle, event, out := discoveryFixture(t)
	s := New(oracle, Options{PortraitPadding: 4})
	req := DiscoverRequest{Event: event, Output: out}

	discovered, err := s.Discover(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if discovered.State != StepAwaitingTags {
		t.Errorf("state = %s, want %s", discovered.State, StepAwaitingTags)
	}
	if len(discovered.Portraits) != 2 {
		t.Fatalf("expected 2 portraits, got %d", len(discovered.Portraits))
	}
	assertExists(t, filepath.Join(out, "_Portraits_To_Tag", "Person_0.jpg"))
	assertExists(t, filepath.Join(out, "_Portraits_To_Tag", "Person_1.jpg"))

	if _, err := facematch.RenamePortrait(discovered.Portraits[0], "Alice", false); err != nil {
		t.Fatalf("RenamePortrait() error: %v", err)
	}

	rec := &recorder{}
	sorted, err := s.Resume(context.Background(), req, rec.report)
	if err != nil {
		t.Fatalf("Resume() error: %v", err)
	}

	for _, name := range []string{"img1.png", "img2.png", "img5.png"} {
		assertExists(t, filepath.Join(out, "Alice", name))
	}
	for _, name := range []string{"img2.png", "img4.png"} {
		assertExists(t, filepath.Join(out, "Person_1", name))
	}
	assertExists(t, filepath.Join(out, "_NoMatches", "img3.png"))
	if sorted.Matched != 4 {
		t.Errorf("expected 4 matched images, got %d", sorted.Matched)
	}

	rec.check(t, 0.7)
	if !rec.contains("Step 2/2: Step 3/4: Matching faces in") {
		t.Errorf("nested progress should carry the phase prefix, got %v", rec.messages)
	}
}

func TestAutoDiscovery(t *testing.T) {
	oracle, event, out := discoveryFixture(t)
	s := New(oracle, Options{Concurrency: 3})

	names := []string{"Alice", "Bob"}
	tagger := TaggerFunc(func(_ context.Context, result *DiscoverResult) error {
		if !s.Running() {
			t.Error("the run should be held while tagging")
		}
		for i, p := range result.Portraits {
			renamed, err := facematch.RenamePortrait(p, names[i], false)
			if err != nil {
				return err
			}
			result.Portraits[i] = renamed
		}
		return nil
	})

	rec := &recorder{}
	discovered, sorted, err := s.AutoDiscovery(context.Background(), DiscoverRequest{Event: event, Output: out}, tagger, rec.report)
	if err != nil {
		t.Fatalf("AutoDiscovery() error: %v", err)
	}
	if discovered.State != StepCompleted {
		t.Errorf("state = %s, want %s", discovered.State, StepCompleted)
	}
	if sorted == nil || sorted.Route.PerPerson["Alice"] != 3 || sorted.Route.PerPerson["Bob"] != 2 {
		t.Errorf("unexpected sort result: %+v", sorted)
	}
	assertExists(t, filepath.Join(out, "Bob", "img4.png"))
	rec.check(t, 0)
	if !rec.contains("Step 1/2: Found unique faces") {
		t.Error("missing discovery completion message")
	}
}

func TestAutoDiscovery_NoFaces(t *testing.T) {
	root := t.TempDir()
	event := filepath.Join(root, "event")
	writePNG(t, filepath.Join(event, "empty.png"))

	called := false
	tagger := TaggerFunc(func(context.Context, *DiscoverResult) error {
		called = true
		return nil
	})

	discovered, sorted, err := New(mock.NewOracle(), Options{}).AutoDiscovery(context.Background(), DiscoverRequest{Event: event, Output: filepath.Join(root, "out")}, tagger, nil)
	if err != nil {
		t.Fatalf("AutoDiscovery() error: %v", err)
	}
	if called {
		t.Error("tagger must not run when no faces were found")
	}
	if sorted != nil || discovered.State != StepCompleted || len(discovered.Portraits) != 0 {
		t.Errorf("unexpected result: %+v, %+v", discovered, sorted)
	}
}

func TestAutoDiscovery_TaggerError(t *testing.T) {
	oracle, event, out := discoveryFixture(t)
	s := New(oracle, Options{})
	boom := errors.New("user quit")

	_, _, err := s.AutoDiscovery(context.Background(), DiscoverRequest{Event: event, Output: out}, TaggerFunc(func(context.Context, *DiscoverResult) error {
		return boom
	}), nil)

	var failure *Failure
	if !errors.As(err, &failure) || failure.Step != StepTag || !errors.Is(err, boom) {
		t.Errorf("expected tag failure wrapping the cause, got %v", err)
	}
	if s.Running() {
		t.Error("sorter should be idle after a failed run")
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path, dir string
		expected  bool
	}{
		{"/a/b/c", "/a/b", true},
		{"/a/b", "/a/b", false},
		{"/a/bc", "/a/b", false},
		{"/a", "/a/b", false},
		{"/a/b/../c", "/a/b", false},
	}
	for _, tt := range tests {
		if got := isWithin(filepath.Clean(tt.path), tt.dir); got != tt.expected {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.expected)
		}
	}
}
