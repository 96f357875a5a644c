// Package export renders stored invoices as spreadsheets for the back
// office.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/repository"
)

const sheetName = "Invoices"

var headerRow = []any{"Invoice Number", "Carrier", "Amount", "Currency", "Due Date", "Status", "PDF Path", "Created At"}

type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	return &Service{invoices: invoices, logger: logger}
}

// WriteXLSX queries the broker's invoices with the given filter and writes
// an XLSX workbook to w.
func (s *Service) WriteXLSX(ctx context.Context, brokerID uuid.UUID, filter repository.InvoiceFilter, w io.Writer) error {
	invoices, err := s.invoices.Query(ctx, brokerID, filter)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, inv := range invoices {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row coordinates: %w", err)
		}
		row := invoiceRow(inv)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	s.logger.Info("export.xlsx.written", "broker_id", brokerID, "rows", len(invoices))
	return nil
}

func invoiceRow(inv *entity.Invoice) []any {
	due := ""
	if inv.DueDate != nil {
		due = inv.DueDate.Format("2006-01-02")
	}
	return []any{
		inv.InvoiceNumber,
		inv.Carrier,
		inv.Amount,
		inv.Currency,
		due,
		inv.Status,
		inv.PDFPath,
		inv.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}
