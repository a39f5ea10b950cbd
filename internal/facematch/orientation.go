package facematch

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/bep/imagemeta"
	"github.com/disintegration/imaging"
)

// readOrientation returns the EXIF orientation (1-8) of a JPEG file, or 1 when
// the file has none or cannot be read.
func readOrientation(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
	default:
		return 1
	}

	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	orientation := 1
	_, err = imagemeta.Decode(imagemeta.Options{
		R:           f,
		ImageFormat: imagemeta.JPEG,
		Sources:     imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Tag == "Orientation"
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if v, ok := tagInt(ti.Value); ok && v >= 1 && v <= 8 {
				orientation = v
			}
			return nil
		},
	})
	if err != nil {
		return 1
	}
	return orientation
}

func tagInt(v any) (int, bool) {
	switch n := v.(type) {
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	}
	return 0, false
}

// applyOrientation returns img transformed so that it displays upright for the
// given EXIF orientation. Orientation 1 and unknown values return img unchanged.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// loadUpright decodes an image and turns it upright, so that its pixels are in
// the same coordinate space as the face boxes of the recognition service.
func loadUpright(path string) (image.Image, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	return applyOrientation(img, readOrientation(path)), nil
}
