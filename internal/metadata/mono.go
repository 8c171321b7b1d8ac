package metadata

import (
	"image"

	"github.com/disintegration/imaging"
)

// monoSampleSize is the low-resolution sample edge used for detection.
const monoSampleSize = 50

// monoThreshold is the mean per-pixel absolute channel deviation (0-255
// scale) below which an image is considered monochrome.
const monoThreshold = 3.0

// IsMonochrome reports whether img is effectively grayscale. The image is
// downsampled to a small RGB grid and the mean absolute deviation of the
// three channels from their per-pixel mean is compared against a fixed
// threshold.
func IsMonochrome(img image.Image) bool {
	if img == nil {
		return false
	}

	sample := imaging.Resize(img, monoSampleSize, monoSampleSize, imaging.NearestNeighbor)
	bounds := sample.Bounds()

	var total float64
	var pixels int
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := sample.At(x, y).RGBA()
			rf := float64(r >> 8)
			gf := float64(g >> 8)
			bf := float64(b >> 8)
			mean := (rf + gf + bf) / 3
			dev := (abs(rf-mean) + abs(gf-mean) + abs(bf-mean)) / 3
			total += dev
			pixels++
		}
	}

	if pixels == 0 {
		return false
	}
	return total/float64(pixels) < monoThreshold
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
