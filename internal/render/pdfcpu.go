package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// LetterWidthPoints is the width of the US letter page the claim form is printed on.
const LetterWidthPoints = 612.0

// EmbeddedImage pulls the largest image embedded on page 1. Scanned bills are
// a single full-page image, so this needs no external binary. The image is
// resized to the letter width at the requested scale.
type EmbeddedImage struct {
	WorkDir string
	Log     *slog.Logger
}

func NewEmbeddedImage(workDir string, log *slog.Logger) *EmbeddedImage {
	if log == nil {
		log = slog.Default()
	}
	return &EmbeddedImage{WorkDir: workDir, Log: log}
}

func (e *EmbeddedImage) RenderFirstPage(ctx context.Context, pdf []byte, scale float64) (image.Image, error) {
	tmpDir, err := os.MkdirTemp(e.WorkDir, "pb-extract-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "page.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, err
	}
	outDir := filepath.Join(tmpDir, "images")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ExtractImagesFile(in, outDir, []string{"1"}, conf); err != nil {
		return nil, fmt.Errorf("pdfcpu extract images: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, err
	}
	var best image.Image
	bestArea := 0
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		img, err := imaging.Open(filepath.Join(outDir, ent.Name()))
		if err != nil {
			e.Log.Debug("render.skip_image", "file", ent.Name(), "err", err)
			continue
		}
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	if best == nil {
		return nil, ErrNoImage
	}

	width := int(LetterWidthPoints*scale + 0.5)
	if width > 0 && best.Bounds().Dx() != width {
		best = imaging.Resize(best, width, 0, imaging.Lanczos)
	}
	return best, nil
}
