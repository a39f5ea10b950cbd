// Package mock provides a deterministic recognition oracle for testing.
package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/face-folio/internal/recognition"
)

// Oracle is a mock implementation of recognition.Oracle.
// Faces are looked up by the image's base file name; unknown images have no faces.
type Oracle struct {
	mu     sync.Mutex
	faces  map[string][]recognition.Face
	errors map[string]error
	calls  map[string]int

	// Metric used by Distance, euclidean when empty.
	Metric recognition.Metric
}

// NewOracle creates a new mock oracle.
func NewOracle() *Oracle {
	return &Oracle{
		faces:  make(map[string][]recognition.Face),
		errors: make(map[string]error),
		calls:  make(map[string]int),
	}
}

// AddFaces registers the faces detected in the named image.
func (o *Oracle) AddFaces(name string, faces ...recognition.Face) *Oracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faces[name] = append(o.faces[name], faces...)
	return o
}

// AddEmbeddings registers faces with the given embeddings and a default box.
func (o *Oracle) AddEmbeddings(name string, embeddings ...recognition.Embedding) *Oracle {
	faces := make([]recognition.Face, len(embeddings))
	for i, e := range embeddings {
		faces[i] = Face(e)
	}
	return o.AddFaces(name, faces...)
}

// FailOn makes Detect return err for the named image.
func (o *Oracle) FailOn(name string, err error) *Oracle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors[name] = err
	return o
}

// Calls returns how many times Detect was called for the named image.
func (o *Oracle) Calls(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[name]
}

// Detect returns the registered faces for the image's base name.
func (o *Oracle) Detect(ctx context.Context, imagePath string) ([]recognition.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(imagePath)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[name]++
	if err, ok := o.errors[name]; ok {
		return nil, fmt.Errorf("detect %s: %w", name, err)
	}
	faces := o.faces[name]
	out := make([]recognition.Face, len(faces))
	copy(out, faces)
	return out, nil
}

// Distance compares embeddings with the configured metric.
func (o *Oracle) Distance(a, b recognition.Embedding) float64 {
	metric := o.Metric
	if metric == "" {
		metric = recognition.MetricEuclidean
	}
	return metric.Distance(a, b)
}

// Face builds a face with a small box in the top-left corner of the image.
func Face(e recognition.Embedding) recognition.Face {
	return recognition.Face{
		Box:       recognition.BoundingBox{Top: 2, Right: 12, Bottom: 12, Left: 2},
		Embedding: e,
	}
}

// DistanceOracle is an Oracle whose distances come from a lookup table,
// letting tests pin exact distances between named embeddings.
// Embeddings are identified by their first component.
type DistanceOracle struct {
	*Oracle
	distances map[[2]float64]float64
}

// NewDistanceOracle creates an oracle with table-driven distances.
func NewDistanceOracle() *DistanceOracle {
	return &DistanceOracle{
		Oracle:    NewOracle(),
		distances: make(map[[2]float64]float64),
	}
}

// SetDistance pins the distance between embeddings identified by ids a and b.
func (o *DistanceOracle) SetDistance(a, b, distance float64) *DistanceOracle {
	o.distances[[2]float64{a, b}] = distance
	o.distances[[2]float64{b, a}] = distance
	return o
}

// Distance returns the pinned distance, falling back to the metric.
func (o *DistanceOracle) Distance(a, b recognition.Embedding) float64 {
	if len(a) > 0 && len(b) > 0 {
		if d, ok := o.distances[[2]float64{a[0], b[0]}]; ok {
			return d
		}
	}
	return o.Oracle.Distance(a, b)
}
