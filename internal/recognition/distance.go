package recognition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Metric selects how two embeddings are compared.
type Metric string

const (
	// MetricEuclidean is the L2 distance used by dlib-style 128-d encodings (tolerance ~0.6).
	MetricEuclidean Metric = "euclidean"
	// MetricCosine is 1 - cosine similarity, used by InsightFace-style 512-d embeddings.
	MetricCosine Metric = "cosine"
)

// maxDistance is returned for vectors that cannot be compared.
const maxDistance = math.MaxFloat64

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricEuclidean, MetricCosine:
		return Metric(s), nil
	case "":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown distance metric: %s (supported: euclidean, cosine)", s)
	}
}

// Distance compares two embeddings with the metric.
func (m Metric) Distance(a, b Embedding) float64 {
	if m == MetricCosine {
		return CosineDistance(a, b)
	}
	return EuclideanDistance(a, b)
}

// EuclideanDistance computes the L2 distance between two embeddings.
// Mismatched or empty vectors are infinitely far apart.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return maxDistance
	}
	return floats.Distance(a, b, 2)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
func CosineDistance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 2.0
	}

	similarity := floats.Dot(a, b) / (normA * normB)
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// Float32 converts an embedding for libraries that index float32 vectors.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}
