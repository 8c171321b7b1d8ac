package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/tiff" // TIFF decoding for RAW previews
	_ "golang.org/x/image/webp" // WebP decoding for standard files

	"photo-catalog/internal/logging"
)

var vipsOnce sync.Once

func vipsInit() {
	vipsOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(nil)
	})
}

// decodeFile decodes a standard raster file. When vips is enabled a
// libvips thumbnail pipeline does decode and bounded downscale in one
// pass; otherwise (or on vips failure) the pure-Go decoder chain runs
// and the caller resizes.
func decodeFile(path string, targetSize int, useVips bool) (image.Image, error) {
	if useVips {
		if img, err := vipsDecode(path, targetSize); err == nil {
			return img, nil
		} else {
			logging.Debug("vips decode of %s failed, falling back: %v", path, err)
		}
	}

	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func vipsDecode(path string, targetSize int) (image.Image, error) {
	vipsInit()

	ref, err := vips.NewThumbnailFromFile(path, targetSize, targetSize, vips.InterestingNone)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	buf, _, err := ref.ExportJpeg(vips.NewJpegExportParams())
	if err != nil {
		return nil, err
	}
	return jpeg.Decode(bytes.NewReader(buf))
}

// decodeBytes decodes an extracted preview blob (JPEG or TIFF).
func decodeBytes(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("preview decode: %w", err)
	}
	return img, nil
}

// longestSide returns the longer dimension of img.
func longestSide(img image.Image) int {
	b := img.Bounds()
	if b.Dx() > b.Dy() {
		return b.Dx()
	}
	return b.Dy()
}

// applyOrientation transforms img per the EXIF orientation value 1..8.
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
	default:
		return img
	}
}

// resizeToProfile bounds img to the profile's target size preserving
// aspect ratio. Without the upscale flag, images already within bounds
// pass through untouched.
func resizeToProfile(img image.Image, p Profile) image.Image {
	longest := longestSide(img)
	if longest == p.TargetSize {
		return img
	}
	if longest < p.TargetSize && !p.Upscale {
		return img
	}
	b := img.Bounds()
	if b.Dx() >= b.Dy() {
		return imaging.Resize(img, p.TargetSize, 0, p.filter())
	}
	return imaging.Resize(img, 0, p.TargetSize, p.filter())
}
