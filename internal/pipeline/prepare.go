package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/imageproc"
	"github.com/joseph-ayodele/provider-bills/internal/llm"
	"github.com/joseph-ayodele/provider-bills/internal/strategy"
)

// preparedPage is a rendered, assessed and enhanced page ready for extraction.
type preparedPage struct {
	plan    strategy.Plan
	metrics imageproc.Metrics
	png     []byte
	zonePNG []byte
	zoneMap string
}

// prepare renders page 1 at the pass zoom, measures it, picks a plan and
// applies the plan's image recipe.
func (p *Processor) prepare(ctx context.Context, log *slog.Logger, b *entity.Bill, pdf []byte, pass constants.Pass) (*preparedPage, error) {
	zoom := strategy.Zoom(pass)
	// Render failures are not retried.
	img, err := p.Renderer.RenderFirstPage(ctx, pdf, zoom)
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	m := imageproc.Assess(img, p.cfg.EstimateSkew)
	plan := strategy.Select(pass, m, b.LastErrorString())
	p.Metrics.ObservePlan(strconv.Itoa(int(pass)), string(m.Tier), string(plan.Strategy))
	log.Info("pipeline.page.assessed",
		"quality", m.Tier, "contrast", m.Contrast, "brightness", m.Brightness, "skew", m.Skew,
		"strategy", plan.Strategy, "category", plan.Category, "zoom", zoom)

	prepared := imageproc.Apply(img, plan.Recipe)
	if plan.Deskew {
		prepared = imageproc.Deskew(prepared, m.Skew)
		log.Debug("pipeline.page.deskewed", "skew", m.Skew)
	}

	page := &preparedPage{plan: plan, metrics: m}
	if page.png, err = imageproc.EncodePNG(prepared); err != nil {
		return nil, err
	}
	if plan.UseZones {
		if z, ok := imageproc.ZoneByName("service_lines"); ok {
			if page.zonePNG, err = imageproc.EncodePNG(imageproc.Crop(prepared, z)); err != nil {
				return nil, err
			}
		}
		page.zoneMap = imageproc.DescribeZones(imageproc.HCFAZones)
	}
	return page, nil
}

// artifactJSON is the indented extraction payload stored next to the bill.
func artifactJSON(res *llm.Result) ([]byte, error) {
	raw := res.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(res.Fields); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview is a dry run of page preparation.
type Preview struct {
	BillID    string
	SourceKey string
	Metrics   imageproc.Metrics
	Plan      strategy.Plan
	PNG       []byte
	ZonePNG   []byte
}

// Preview renders and prepares billID's page the way pass would, without
// leasing the bill or calling the extractor.
func (p *Processor) Preview(ctx context.Context, billID string, pass constants.Pass) (*Preview, error) {
	b, err := p.Bills.Get(ctx, billID)
	if err != nil {
		return nil, err
	}
	pdf, key, err := p.fetchPDF(ctx, b, pass)
	if err != nil {
		return nil, fmt.Errorf("fetch pdf: %w", err)
	}
	page, err := p.prepare(ctx, p.log.With("bill_id", billID, "pass", int(pass), "preview", true), b, pdf, pass)
	if err != nil {
		return nil, err
	}
	return &Preview{
		BillID:    billID,
		SourceKey: key,
		Metrics:   page.metrics,
		Plan:      page.plan,
		PNG:       page.png,
		ZonePNG:   page.zonePNG,
	}, nil
}
