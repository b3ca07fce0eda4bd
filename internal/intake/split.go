package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Splitter turns a multi-page PDF into single-page PDFs, in page order.
type Splitter interface {
	Split(ctx context.Context, pdf []byte) ([][]byte, error)
}

// PDFCPUSplitter splits with pdfcpu through a scratch directory.
type PDFCPUSplitter struct {
	WorkDir string // "" uses the OS temp dir
}

func (s PDFCPUSplitter) Split(ctx context.Context, pdf []byte) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp(s.WorkDir, "pb-split-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "batch.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, err
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCountFile(in)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	outDir := filepath.Join(tmpDir, "pages")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	if err := api.SplitFile(in, outDir, 1, conf); err != nil {
		return nil, fmt.Errorf("split pdf: %w", err)
	}

	pages := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(outDir, fmt.Sprintf("batch_%d.pdf", i)))
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
