package imageproc

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// Zone is a rectangle of the claim form in page-relative coordinates.
type Zone struct {
	Name string
	X, Y float64
	W, H float64
}

// HCFAZones is the layout of a CMS-1500 form, top to bottom.
var HCFAZones = []Zone{
	{Name: "patient_insurance", X: 0, Y: 0, W: 1, H: 0.25},
	{Name: "patient_condition", X: 0, Y: 0.25, W: 0.5, H: 0.15},
	{Name: "diagnosis", X: 0, Y: 0.35, W: 0.5, H: 0.10},
	{Name: "service_lines", X: 0, Y: 0.45, W: 1, H: 0.25},
	{Name: "billing_totals", X: 0, Y: 0.70, W: 1, H: 0.15},
	{Name: "provider_info", X: 0, Y: 0.85, W: 1, H: 0.15},
}

// ZoneByName returns the named zone of HCFAZones.
func ZoneByName(name string) (Zone, bool) {
	for _, z := range HCFAZones {
		if z.Name == name {
			return z, true
		}
	}
	return Zone{}, false
}

// Rect converts z to pixels within bounds.
func (z Zone) Rect(bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(z.X*w),
		bounds.Min.Y+int(z.Y*h),
		bounds.Min.X+int((z.X+z.W)*w),
		bounds.Min.Y+int((z.Y+z.H)*h),
	)
	return r.Intersect(bounds)
}

// Crop cuts z out of img.
func Crop(img image.Image, z Zone) *image.NRGBA {
	return imaging.Crop(img, z.Rect(img.Bounds()))
}

// DescribeZones renders the zone map as prompt context.
func DescribeZones(zones []Zone) string {
	var b strings.Builder
	b.WriteString("Form regions (relative x, y, width, height):\n")
	for _, z := range zones {
		fmt.Fprintf(&b, "- %s: (%.2f, %.2f, %.2f, %.2f)\n", z.Name, z.X, z.Y, z.W, z.H)
	}
	return b.String()
}
