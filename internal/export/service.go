// Package export writes bill queues to XLSX for offline review.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/provider-bills/constants"
	"github.com/joseph-ayodele/provider-bills/internal/entity"
	"github.com/joseph-ayodele/provider-bills/internal/repository"
)

const (
	BillsSheet = "Bills"
	LinesSheet = "Line Items"
)

var billHeaders = []string{
	"Bill ID", "Status", "Action", "Last Error", "Patient", "Patient DOB",
	"Provider", "Provider NPI", "Total Charge", "Line Sum", "Claim ID", "Source File", "Updated",
}

var lineHeaders = []string{
	"Bill ID", "CPT", "Modifier", "Units", "Charge", "Date of Service", "Place of Service", "Decision",
}

// Service produces XLSX bytes for exports.
type Service struct {
	bills  repository.BillRepository
	lines  repository.LineItemRepository
	logger *slog.Logger
}

func NewService(bills repository.BillRepository, lines repository.LineItemRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bills: bills, lines: lines, logger: logger}
}

// ExportBillsXLSX returns a workbook with one row per bill in statuses (all
// statuses when empty) and a second sheet with their line items.
func (s *Service) ExportBillsXLSX(ctx context.Context, statuses []constants.BillStatus) ([]byte, error) {
	start := time.Now()
	bills, err := s.bills.ListByStatus(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", BillsSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(LinesSheet); err != nil {
		return nil, err
	}
	writeHeader(f, BillsSheet, billHeaders)
	writeHeader(f, LinesSheet, lineHeaders)

	row, lineRow := 2, 2
	for _, b := range bills {
		items, err := s.lines.ListByBill(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("query lines of %s: %w", b.ID, err)
		}
		claim := ""
		if b.ClaimID != nil {
			claim = *b.ClaimID
		}
		writeRow(f, BillsSheet, row,
			b.ID, string(b.Status), string(b.Action), truncate(b.LastErrorString(), 250), b.PatientName, b.PatientDOB,
			b.BillingProviderName, b.BillingProviderNPI, entity.FormatMoney(b.TotalCharge),
			entity.SumCharges(items).StringFixed(2), claim, b.SourceFile, b.UpdatedAt.Format(time.DateTime))
		row++

		for _, it := range items {
			writeRow(f, LinesSheet, lineRow,
				b.ID, it.CPTCode, it.Modifier, it.Units, entity.FormatMoney(it.ChargeAmount),
				it.DateOfService, it.PlaceOfService, it.Decision)
			lineRow++
		}
	}

	_ = f.SetColWidth(BillsSheet, "A", "A", 34)
	_ = f.SetColWidth(BillsSheet, "D", "D", 60)
	_ = f.SetColWidth(BillsSheet, "E", "H", 24)
	_ = f.SetColWidth(BillsSheet, "L", "L", 40)
	_ = f.SetColWidth(LinesSheet, "A", "A", 34)
	_ = f.SetPanes(BillsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"bills", len(bills),
		"lines", lineRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string) {
	vals := make([]any, len(headers))
	for i, h := range headers {
		vals[i] = h
	}
	writeRow(f, sheet, 1, vals...)
}

func writeRow(f *excelize.File, sheet string, row int, vals ...any) {
	for i, v := range vals {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
