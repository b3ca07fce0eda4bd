// Package render turns the first page of a bill PDF into a raster image.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Renderer rasterises page 1 of a PDF. scale is relative to 72 DPI, so 2.0
// renders at 144 DPI.
type Renderer interface {
	RenderFirstPage(ctx context.Context, pdf []byte, scale float64) (image.Image, error)
}

// ErrNoImage is returned when a renderer produced nothing for the page.
var ErrNoImage = errors.New("render: no image produced")

// Chain tries each renderer in order and returns the first image.
type Chain struct {
	Renderers []Renderer
	Log       *slog.Logger
}

func (c Chain) RenderFirstPage(ctx context.Context, pdf []byte, scale float64) (image.Image, error) {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	var errs []error
	for i, r := range c.Renderers {
		img, err := r.RenderFirstPage(ctx, pdf, scale)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("render.fallback", "renderer", fmt.Sprintf("%T", r), "index", i, "err", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrNoImage
	}
	return nil, errors.Join(errs...)
}

// DPI converts a 72-DPI relative scale to dots per inch.
func DPI(scale float64) int {
	if scale <= 0 {
		scale = 1
	}
	return int(72*scale + 0.5)
}
