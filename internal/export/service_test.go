package export

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/haulstack/invoice-ingest/internal/repository"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriteXLSX(t *testing.T) {
	ctx := context.Background()
	logger := testLogger()

	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	broker, err := repository.NewBrokerRepository(db, logger).Create(ctx, "Acme", "mail.example.com", "ap@example.com", "enc")
	if err != nil {
		t.Fatalf("create broker: %v", err)
	}
	email, _, err := repository.NewEmailRepository(db, logger).UpsertByMessageID(ctx, broker.ID, "<m1@x>", "a@x", "inv", time.Now())
	if err != nil {
		t.Fatalf("create email: %v", err)
	}

	invRepo := repository.NewInvoiceRepository(db, logger)
	due := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	if _, _, err := invRepo.UpsertByNumber(ctx, &repository.CreateInvoiceRequest{
		BrokerID:      broker.ID,
		EmailID:       email.ID,
		PDFPath:       "/tmp/inv-100.pdf",
		InvoiceNumber: "INV-100",
		Carrier:       "Knight Logistics",
		Amount:        1450.25,
		Currency:      "USD",
		DueDate:       &due,
		ExtractedJSON: "{}",
	}); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	var buf bytes.Buffer
	svc := NewService(invRepo, logger)
	if err := svc.WriteXLSX(ctx, broker.ID, repository.InvoiceFilter{}, &buf); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	wb, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer wb.Close()

	rows, err := wb.GetRows(sheetName)
	if err != nil {
		t.Fatalf("get rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "Invoice Number" {
		t.Fatalf("header = %v", rows[0])
	}
	got := rows[1]
	if got[0] != "INV-100" || got[1] != "Knight Logistics" || got[3] != "USD" || got[4] != "2026-09-30" || got[5] != "UNPAID" {
		t.Fatalf("row = %v", got)
	}
}
