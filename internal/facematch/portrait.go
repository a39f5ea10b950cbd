package facematch

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/kozaktomas/face-folio/internal/constants"
	"github.com/kozaktomas/face-folio/internal/recognition"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// maxPortraitSize is the maximum dimension (width or height) of a saved portrait.
const maxPortraitSize = 512

var errEmptyCrop = errors.New("face box lies outside the image")

// loadImage decodes a jpg, png or bmp file.
func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// cropFace cuts the padded face region out of img, downscaling large crops.
func cropFace(img image.Image, box recognition.BoundingBox, padding int) (image.Image, error) {
	r := PadBox(box, padding, img.Bounds())
	if r.Empty() {
		return nil, errEmptyCrop
	}

	w, h := fitWithin(r.Dx(), r.Dy(), maxPortraitSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == r.Dx() && h == r.Dy() {
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, r, draw.Src, nil)
	}
	return dst, nil
}

// savePortrait writes img as a JPEG file.
func savePortrait(path string, img image.Image, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = constants.DefaultPortraitQuality
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating portrait: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("encoding portrait: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("closing portrait: %w", err)
	}
	return nil
}

// PortraitFilename returns the untagged file name of portrait index (Person_<N>.jpg).
func PortraitFilename(index int) string {
	return constants.PortraitPrefix + strconv.Itoa(index) + constants.PortraitExt
}

// ListPortraits returns the portrait files in dir. Untagged Person_<N> files come
// first in numeric order, tagged ones follow alphabetically.
func ListPortraits(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading portraits: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), constants.PortraitExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}

	slices.SortFunc(paths, func(a, b string) int {
		ia, oka := portraitIndex(a)
		ib, okb := portraitIndex(b)
		switch {
		case oka && okb:
			return ia - ib
		case oka:
			return -1
		case okb:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return paths, nil
}

// portraitIndex parses N from an untagged Person_<N>.jpg path.
func portraitIndex(path string) (int, bool) {
	stem := PersonName(path)
	rest, ok := strings.CutPrefix(stem, constants.PortraitPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
