package facematch

import (
	"image"

	"github.com/kozaktomas/face-folio/internal/recognition"
)

// PadBox grows a face box by padding pixels on every side and clamps it to bounds.
// The result is empty when the box lies entirely outside bounds.
func PadBox(box recognition.BoundingBox, padding int, bounds image.Rectangle) image.Rectangle {
	padding = max(padding, 0)
	r := image.Rect(
		box.Left-padding,
		box.Top-padding,
		box.Right+padding,
		box.Bottom+padding,
	)
	return r.Intersect(bounds)
}

// fitWithin returns the size of a w x h rectangle scaled down to fit in maxSize,
// keeping its aspect ratio. Sizes that already fit are returned unchanged.
func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w >= h {
		return maxSize, max(1, h*maxSize/w)
	}
	return max(1, w*maxSize/h), maxSize
}
