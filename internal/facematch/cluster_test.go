package facematch

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kozaktomas/face-folio/internal/recognition"
	"github.com/kozaktomas/face-folio/internal/recognition/mock"
)

func TestClusterer_Observe(t *testing.T) {
	c := NewClusterer(recognition.EuclideanDistance, 0.6)

	steps := []struct {
		embedding recognition.Embedding
		index     int
		isNew     bool
	}{
		{recognition.Embedding{0, 0}, 0, true},
		{recognition.Embedding{0.5, 0}, 0, false},
		{recognition.Embedding{1.0, 0}, 1, true}, // 0.5 from the previous face but 1.0 from the representative
		{recognition.Embedding{0.1, 0}, 0, false},
		{recognition.Embedding{5, 5}, 2, true},
		{recognition.Embedding{1.1, 0}, 1, false},
	}

	prevLen := 0
	for i, s := range steps {
		index, isNew := c.Observe(s.embedding)
		if index != s.index || isNew != s.isNew {
			t.Errorf("step %d: Observe(%v) = (%d, %v), want (%d, %v)", i, s.embedding, index, isNew, s.index, s.isNew)
		}
		if c.Len() < prevLen {
			t.Fatalf("step %d: cluster count decreased from %d to %d", i, prevLen, c.Len())
		}
		prevLen = c.Len()
	}

	if got := c.Representative(0); !reflect.DeepEqual(got, recognition.Embedding{0, 0}) {
		t.Errorf("representative moved: got %v", got)
	}
}

func TestClusterer_RepresentativeIsCopied(t *testing.T) {
	c := NewClusterer(recognition.EuclideanDistance, 0.6)
	e := recognition.Embedding{1, 2}
	c.Add(e)
	e[0] = 99

	rep := c.Representative(0)
	if rep[0] != 1 {
		t.Errorf("Add should store a copy, got %v", rep)
	}
	rep[1] = 99
	if c.Representative(0)[1] != 2 {
		t.Error("Representative should return a copy")
	}
}

func TestClusterer_EmptyMatch(t *testing.T) {
	c := NewClusterer(recognition.EuclideanDistance, 0.6)
	if c.Match(recognition.Embedding{0}) != -1 {
		t.Error("empty clusterer should not match anything")
	}
}

// discoverFixture writes five event images containing two people:
// A appears in img1, img2 and img5, B in img2 and img4, img3 has no faces.
func discoverFixture(t *testing.T) (*mock.Oracle, []string) {
	t.Helper()
	dir := t.TempDir()
	var images []string
	for i := 1; i <= 5; i++ {
		images = append(images, writeImage(t, dir, fmt.Sprintf("img%d.png", i), 40, 40))
	}

	a, b := recognition.Embedding{0, 0}, recognition.Embedding{10, 0}
	oracle := mock.NewOracle().
		AddEmbeddings("img1.png", a).
		AddEmbeddings("img2.png", recognition.Embedding{0.2, 0}, b).
		AddEmbeddings("img4.png", recognition.Embedding{10.3, 0}).
		AddEmbeddings("img5.png", recognition.Embedding{0.1, 0.1})
	return oracle, images
}

func TestDiscover(t *testing.T) {
	oracle, images := discoverFixture(t)
	portraitDir := filepath.Join(t.TempDir(), "_Portraits_To_Tag")

	var fractions []float64
	records, imgErrors, err := Discover(context.Background(), oracle, images, portraitDir, DiscoverOptions{Tolerance: 0.6, Padding: 4}, func(_ string, f float64) {
		fractions = append(fractions, f)
	})
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if len(imgErrors) != 0 {
		t.Errorf("unexpected image errors: %v", imgErrors)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 portraits, got %d", len(records))
	}
	for i, rec := range records {
		if rec.Index != i {
			t.Errorf("record %d has index %d", i, rec.Index)
		}
		want := filepath.Join(portraitDir, fmt.Sprintf("Person_%d.jpg", i))
		if rec.Path != want {
			t.Errorf("record %d path = %s, want %s", i, rec.Path, want)
		}
	}
	if !reflect.DeepEqual(records[0].Embedding, recognition.Embedding{0, 0}) {
		t.Errorf("first cluster should be represented by its first face, got %v", records[0].Embedding)
	}
	if !reflect.DeepEqual(records[1].Embedding, recognition.Embedding{10, 0}) {
		t.Errorf("second cluster should be represented by its first face, got %v", records[1].Embedding)
	}

	files, err := ListPortraits(portraitDir)
	if err != nil {
		t.Fatalf("ListPortraits() error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 portrait files, got %v", files)
	}

	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open portrait: %v", err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatalf("portrait is not a JPEG: %v", err)
	}
	// box 2..12 padded by 4, clamped at the top-left corner
	if cfg.Width != 16 || cfg.Height != 16 {
		t.Errorf("portrait size = %dx%d, want 16x16", cfg.Width, cfg.Height)
	}

	if len(fractions) == 0 || fractions[len(fractions)-1] != 1 {
		t.Errorf("expected final progress of 1, got %v", fractions)
	}
}

func TestDiscover_ClearsPortraitDir(t *testing.T) {
	oracle, images := discoverFixture(t)
	portraitDir := t.TempDir()
	stale := filepath.Join(portraitDir, "Person_7.jpg")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Discover(context.Background(), oracle, images, portraitDir, DiscoverOptions{}, nil); err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale portrait should have been removed")
	}
}

func TestDiscover_NoFaces(t *testing.T) {
	dir := t.TempDir()
	images := []string{writeImage(t, dir, "empty.png", 20, 20)}
	portraitDir := filepath.Join(dir, "portraits")

	records, _, err := Discover(context.Background(), mock.NewOracle(), images, portraitDir, DiscoverOptions{}, nil)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no portraits, got %d", len(records))
	}
	if info, err := os.Stat(portraitDir); err != nil || !info.IsDir() {
		t.Error("portrait directory should exist even when empty")
	}
}

func TestDiscover_FailuresAreSkipped(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.png")
	if err := os.WriteFile(broken, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	good := writeImage(t, dir, "good.png", 30, 30)
	unreadable := filepath.Join(dir, "unreadable.png")

	face := recognition.Embedding{1, 1}
	oracle := mock.NewOracle().
		AddEmbeddings("broken.png", face).
		FailOn("unreadable.png", errors.New("oracle failed")).
		AddEmbeddings("good.png", face)

	records, imgErrors, err := Discover(context.Background(), oracle, []string{broken, unreadable, good}, filepath.Join(dir, "out"), DiscoverOptions{}, nil)
	if err != nil {
		t.Fatalf("Discover() error: %v", err)
	}
	if len(imgErrors) != 2 {
		t.Fatalf("expected 2 image errors, got %v", imgErrors)
	}
	if len(records) != 1 || records[0].Index != 0 {
		t.Fatalf("the face should be discovered from good.png as Person_0, got %v", records)
	}
	if _, err := os.Stat(records[0].Path); err != nil {
		t.Errorf("portrait file missing: %v", err)
	}
}

func TestDiscover_ParallelMatchesSequential(t *testing.T) {
	oracle, images := discoverFixture(t)
	root := t.TempDir()

	seq, _, err := Discover(context.Background(), oracle, images, filepath.Join(root, "seq"), DiscoverOptions{}, nil)
	if err != nil {
		t.Fatalf("sequential Discover() error: %v", err)
	}
	par, _, err := Discover(context.Background(), oracle, images, filepath.Join(root, "par"), DiscoverOptions{Concurrency: 4}, nil)
	if err != nil {
		t.Fatalf("parallel Discover() error: %v", err)
	}

	if len(seq) != len(par) {
		t.Fatalf("portrait count differs: %d vs %d", len(seq), len(par))
	}
	for i := range seq {
		if seq[i].Index != par[i].Index || filepath.Base(seq[i].Path) != filepath.Base(par[i].Path) {
			t.Errorf("portrait %d differs: %+v vs %+v", i, seq[i], par[i])
		}
		if !reflect.DeepEqual(seq[i].Embedding, par[i].Embedding) {
			t.Errorf("portrait %d representative differs", i)
		}
	}
}

func TestDiscover_Cancelled(t *testing.T) {
	oracle, images := discoverFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Discover(ctx, oracle, images, t.TempDir(), DiscoverOptions{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
