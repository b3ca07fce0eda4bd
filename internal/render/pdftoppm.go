package render

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/disintegration/imaging"
)

// Pdftoppm renders with poppler's pdftoppm.
type Pdftoppm struct {
	Bin     string // defaults to "pdftoppm"
	WorkDir string // temp dir parent; "" uses os.TempDir
	Runner  Runner
	Log     *slog.Logger
}

func NewPdftoppm(bin, workDir string, log *slog.Logger) *Pdftoppm {
	if log == nil {
		log = slog.Default()
	}
	if bin == "" {
		bin = "pdftoppm"
	}
	return &Pdftoppm{Bin: bin, WorkDir: workDir, Runner: ExecRunner{Log: log}, Log: log}
}

func (p *Pdftoppm) RenderFirstPage(ctx context.Context, pdf []byte, scale float64) (image.Image, error) {
	tmpDir, err := os.MkdirTemp(p.WorkDir, "pb-render-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.Log.Warn("failed to remove temp dir", "dir", tmpDir, "error", err)
		}
	}()

	in := filepath.Join(tmpDir, "page.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, err
	}
	prefix := filepath.Join(tmpDir, "page")

	// pdftoppm -r <dpi> -f 1 -l 1 -png -singlefile <in.pdf> <tmp/page>
	if err := p.Runner.Run(ctx, p.Bin,
		"-r", strconv.Itoa(DPI(scale)), "-f", "1", "-l", "1", "-png", "-singlefile", in, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}

	img, err := imaging.Open(prefix + ".png")
	if os.IsNotExist(err) {
		return nil, ErrNoImage
	}
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
