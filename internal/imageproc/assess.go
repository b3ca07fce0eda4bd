// Package imageproc measures and prepares rendered bill pages before extraction.
package imageproc

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/joseph-ayodele/provider-bills/constants"
)

// Metrics are the quality measurements of one page.
type Metrics struct {
	Contrast   float64               `json:"contrast"`   // greyscale standard deviation
	Brightness float64               `json:"brightness"` // greyscale mean
	Skew       float64               `json:"skew"`       // degrees, counter-clockwise
	Tier       constants.QualityTier `json:"tier"`
}

// Assess measures img. Skew is only estimated when estimateSkew is set.
func Assess(img image.Image, estimateSkew bool) Metrics {
	mean, std := lumaStats(img)
	m := Metrics{Contrast: std, Brightness: mean}
	if estimateSkew {
		m.Skew = EstimateSkew(img)
	}
	m.Tier = Tier(m.Contrast, m.Brightness, m.Skew)
	return m
}

// Tier rates a page; the first matching tier wins.
func Tier(contrast, brightness, skew float64) constants.QualityTier {
	s := math.Abs(skew)
	switch {
	case contrast > 50 && brightness > 100 && brightness < 200 && s < 2:
		return constants.QualityExcellent
	case contrast > 30 && brightness > 80 && brightness < 220 && s < 5:
		return constants.QualityGood
	case contrast > 20 && brightness > 60 && brightness < 240 && s < 10:
		return constants.QualityFair
	default:
		return constants.QualityPoor
	}
}

// luma is ITU-R 601 grey, rounded to an integer level.
func luma(r, g, b uint8) float64 {
	return float64((299*int(r) + 587*int(g) + 114*int(b) + 500) / 1000)
}

func lumaStats(img image.Image) (mean, std float64) {
	src := imaging.Clone(img)
	n := float64(src.Bounds().Dx() * src.Bounds().Dy())
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for i := 0; i+3 < len(src.Pix); i += 4 {
		l := luma(src.Pix[i], src.Pix[i+1], src.Pix[i+2])
		sum += l
		sumSq += l * l
	}
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}
