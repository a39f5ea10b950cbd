package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-folio/internal/recognition"
	"github.com/kozaktomas/face-folio/internal/recognition/mock"
	"github.com/kozaktomas/face-folio/internal/sorter"
)

// testRouter wires a runs handler the way the server does
func testRouter(h *RunsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/v1/runs", h.List)
	r.Post("/api/v1/runs/sort", h.StartSort)
	r.Post("/api/v1/runs/discover", h.StartDiscover)
	r.Get("/api/v1/runs/{runId}", h.Status)
	r.Delete("/api/v1/runs/{runId}", h.Cancel)
	r.Get("/api/v1/runs/{runId}/events", h.Events)
	r.Post("/api/v1/runs/{runId}/resume", h.Resume)
	r.Get("/api/v1/runs/{runId}/portraits", h.Portraits)
	r.Get("/api/v1/runs/{runId}/portraits/{index}/image", h.PortraitImage)
	r.Put("/api/v1/runs/{runId}/portraits/{index}", h.TagPortrait)
	return r
}

func newTestHandler(oracle recognition.Oracle) (*RunsHandler, *chi.Mux) {
	h := NewRunsHandler(sorter.New(oracle, sorter.Options{PortraitPadding: 4}), NewRunManager(), nil)
	return h, testRouter(h)
}

// doRequest sends a request with an optional JSON body through the router
func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

// assertStatusCode checks that the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// parseJSONResponse parses the JSON response body into the given target
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v, body: %s", err, recorder.Body.String())
	}
}

// waitForStatus polls a run until it reaches the wanted status
func waitForStatus(t *testing.T, job *RunJob, want JobStatus) RunStatus {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status == want {
			return snap
		}
		if isJobTerminal(snap.Status) {
			t.Fatalf("run ended as %s (%s), want %s", snap.Status, snap.Error, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, last %s", want, job.GetStatus())
	return RunStatus{}
}

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

var (
	faceA = recognition.Embedding{0, 0}
	faceB = recognition.Embedding{10, 0}
)

// sortFixture lays out a reference folder with Alice and Bob and two event photos
func sortFixture(t *testing.T) (*mock.Oracle, RunRequest) {
	t.Helper()
	root := t.TempDir()
	req := RunRequest{
		Reference: filepath.Join(root, "reference"),
		Event:     filepath.Join(root, "event"),
		Output:    filepath.Join(root, "out"),
	}
	writePNG(t, filepath.Join(req.Reference, "Alice.png"))
	writePNG(t, filepath.Join(req.Reference, "Bob.png"))
	writePNG(t, filepath.Join(req.Event, "photo1.png"))
	writePNG(t, filepath.Join(req.Event, "photo2.png"))

	oracle := mock.NewOracle().
		AddEmbeddings("Alice.png", faceA).
		AddEmbeddings("Bob.png", faceB).
		AddEmbeddings("photo1.png", recognition.Embedding{0.1, 0}, recognition.Embedding{10.2, 0})
	return oracle, req
}

// discoverFixture lays out event photos with two distinct faces
func discoverFixture(t *testing.T) (*mock.Oracle, RunRequest) {
	t.Helper()
	root := t.TempDir()
	req := RunRequest{
		Event:  filepath.Join(root, "event"),
		Output: filepath.Join(root, "out"),
	}
	for _, name := range []string{"img1.png", "img2.png", "img3.png"} {
		writePNG(t, filepath.Join(req.Event, name))
	}
	oracle := mock.NewOracle().
		AddEmbeddings("img1.png", faceA).
		AddEmbeddings("img2.png", recognition.Embedding{0.2, 0}, faceB).
		AddEmbeddings("Person_0.jpg", faceA).
		AddEmbeddings("Person_1.jpg", faceB).
		AddEmbeddings("Alice.jpg", faceA).
		AddEmbeddings("Bob.jpg", faceB)
	return oracle, req
}
