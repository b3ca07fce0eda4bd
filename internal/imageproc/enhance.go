package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Recipe is the set of adjustments applied before extraction. Zero factors
// mean "leave unchanged".
type Recipe struct {
	Contrast    float64
	Brightness  float64
	Sharpen     bool
	EdgeEnhance bool
}

// IsIdentity reports whether r leaves the image as is.
func (r Recipe) IsIdentity() bool {
	return (r.Contrast == 0 || r.Contrast == 1) && (r.Brightness == 0 || r.Brightness == 1) && !r.Sharpen && !r.EdgeEnhance
}

var (
	sharpenKernel = [9]float64{-2, -2, -2, -2, 32, -2, -2, -2, -2}
	edgeKernel    = [9]float64{-1, -1, -1, -1, 10, -1, -1, -1, -1}
)

// Apply runs r on img: contrast, then brightness, then sharpen, then edge enhance.
func Apply(img image.Image, r Recipe) image.Image {
	if r.IsIdentity() {
		return img
	}
	out := imaging.Clone(img)
	if r.Contrast != 0 && r.Contrast != 1 {
		out = Contrast(out, r.Contrast)
	}
	if r.Brightness != 0 && r.Brightness != 1 {
		out = Brightness(out, r.Brightness)
	}
	if r.Sharpen {
		out = imaging.Convolve3x3(out, sharpenKernel, &imaging.ConvolveOptions{Normalize: true})
	}
	if r.EdgeEnhance {
		out = imaging.Convolve3x3(out, edgeKernel, &imaging.ConvolveOptions{Normalize: true})
	}
	return out
}

// Contrast scales each channel's distance from the page's mean grey by factor.
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean, _ := lumaStats(img)
	mean = math.Floor(mean + 0.5)
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(mean + factor*(float64(c.R)-mean)),
			G: clamp(mean + factor*(float64(c.G)-mean)),
			B: clamp(mean + factor*(float64(c.B)-mean)),
			A: c.A,
		}
	})
}

// Brightness multiplies each channel by factor.
func Brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp(factor * float64(c.R)),
			G: clamp(factor * float64(c.G)),
			B: clamp(factor * float64(c.B)),
			A: c.A,
		}
	})
}

func clamp(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
