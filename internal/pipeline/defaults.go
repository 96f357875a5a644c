package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/internal/entity"
	"github.com/haulstack/invoice-ingest/internal/extract"
	"github.com/haulstack/invoice-ingest/internal/repository"
)

const (
	defaultCarrier  = "Unknown"
	defaultCurrency = "USD"
)

// buildInvoiceRequest normalizes extracted fields into a storable record.
// Missing fields get deterministic defaults so re-running the pipeline over
// the same email produces the same row instead of a duplicate: the fallback
// invoice number is derived from the email ID and the file name, never from
// the clock.
func buildInvoiceRequest(brokerID uuid.UUID, email *entity.Email, pdfPath string, res *extract.Result) *repository.CreateInvoiceRequest {
	req := &repository.CreateInvoiceRequest{
		BrokerID:      brokerID,
		EmailID:       email.ID,
		PDFPath:       pdfPath,
		Carrier:       defaultCarrier,
		Currency:      defaultCurrency,
		ExtractedJSON: string(res.RawJSON),
	}

	f := res.Fields
	if f.InvoiceNumber != nil && strings.TrimSpace(*f.InvoiceNumber) != "" {
		req.InvoiceNumber = strings.TrimSpace(*f.InvoiceNumber)
	} else {
		req.InvoiceNumber = fallbackInvoiceNumber(email.ID, pdfPath)
	}
	if f.Carrier != nil && strings.TrimSpace(*f.Carrier) != "" {
		req.Carrier = strings.TrimSpace(*f.Carrier)
	}
	if f.Amount != nil {
		req.Amount = *f.Amount
	}
	if f.Currency != nil && strings.TrimSpace(*f.Currency) != "" {
		req.Currency = strings.ToUpper(strings.TrimSpace(*f.Currency))
	}
	if f.DueDate != nil {
		if due, err := time.Parse("2006-01-02", *f.DueDate); err == nil {
			req.DueDate = &due
		}
	}
	return req
}

func fallbackInvoiceNumber(emailID uuid.UUID, pdfPath string) string {
	id := emailID.String()
	if len(id) > 8 {
		id = id[:8]
	}
	base := filepath.Base(pdfPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return "MISSING-" + id + "-" + base
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
