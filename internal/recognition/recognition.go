// Package recognition defines the face recognition oracle consumed by the pipeline
// and provides an HTTP client for the face embedding server.
package recognition

import (
	"context"
	"math"
)

// Embedding is a fixed-length vector describing one detected face.
type Embedding []float64

// BoundingBox is a face location in pixel coordinates of the source image.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the horizontal extent of the box.
func (b BoundingBox) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box.
func (b BoundingBox) Height() int {
	return b.Bottom - b.Top
}

// BoxFromCorners converts a [x1, y1, x2, y2] pixel bbox to a BoundingBox.
// Returns the zero box when the slice is malformed.
func BoxFromCorners(bbox []float64) BoundingBox {
	if len(bbox) != 4 {
		return BoundingBox{}
	}
	return BoundingBox{
		Left:   int(math.Round(bbox[0])),
		Top:    int(math.Round(bbox[1])),
		Right:  int(math.Round(bbox[2])),
		Bottom: int(math.Round(bbox[3])),
	}
}

// Face is a single face observation: where it is and what it looks like.
type Face struct {
	Box       BoundingBox
	Embedding Embedding
}

// Oracle detects faces in still images and compares their embeddings.
// Finding zero faces is a normal result, not an error.
type Oracle interface {
	Detect(ctx context.Context, imagePath string) ([]Face, error)
	Distance(a, b Embedding) float64
}
