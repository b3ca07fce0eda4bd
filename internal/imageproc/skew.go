package imageproc

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

const (
	maxSkewDegrees  = 10.0
	skewStepDegrees = 0.25
	skewSampleWidth = 600
	darkThreshold   = 128
)

// EstimateSkew returns the counter-clockwise rotation of the page's text lines
// in degrees, searched over ±10°. Each candidate angle projects the dark
// pixels onto rotated rows; the sharpest row profile wins.
func EstimateSkew(img image.Image) float64 {
	small := img
	if img.Bounds().Dx() > skewSampleWidth {
		small = imaging.Resize(img, skewSampleWidth, 0, imaging.Box)
	}
	grey := imaging.Grayscale(small)
	w, h := grey.Bounds().Dx(), grey.Bounds().Dy()
	cx, cy := float64(w)/2, float64(h)/2

	type pt struct{ x, y float64 }
	var dark []pt
	for y := 0; y < h; y++ {
		row := grey.Pix[y*grey.Stride:]
		for x := 0; x < w; x++ {
			if row[x*4] < darkThreshold {
				dark = append(dark, pt{float64(x) - cx, float64(y) - cy})
			}
		}
	}
	if len(dark) == 0 {
		return 0
	}

	diag := int(math.Hypot(float64(w), float64(h))) + 2
	bins := make([]int, diag)
	best, bestScore := 0.0, -1.0
	for a := -maxSkewDegrees; a <= maxSkewDegrees+1e-9; a += skewStepDegrees {
		sin, cos := math.Sincos(a * math.Pi / 180)
		clear(bins)
		for _, p := range dark {
			// row of p after rotating the page a degrees counter-clockwise
			r := int(-p.x*sin+p.y*cos) + diag/2
			if r >= 0 && r < diag {
				bins[r]++
			}
		}
		var score float64
		for i := 1; i < diag; i++ {
			d := float64(bins[i] - bins[i-1])
			score += d * d
		}
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	// best straightens the page, so the page itself is rotated the other way.
	return -math.Round(best*100) / 100
}

// Deskew rotates img to undo skew degrees, filling with white.
func Deskew(img image.Image, skew float64) image.Image {
	if skew == 0 {
		return img
	}
	return imaging.Rotate(img, -skew, color.White)
}
