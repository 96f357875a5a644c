package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haulstack/invoice-ingest/constants"
	"github.com/haulstack/invoice-ingest/internal/common"
	"github.com/haulstack/invoice-ingest/internal/entity"
)

// CreateInvoiceRequest wraps parameters for storing an extracted invoice.
type CreateInvoiceRequest struct {
	BrokerID      uuid.UUID
	EmailID       uuid.UUID
	PDFPath       string
	InvoiceNumber string
	Carrier       string
	Amount        float64
	Currency      string
	DueDate       *time.Time
	ExtractedJSON string
}

// InvoiceFilter narrows Query results. Zero values mean no filtering.
type InvoiceFilter struct {
	Status  string
	Carrier string // case-insensitive substring match
}

type InvoiceRepository interface {
	// UpsertByNumber inserts the invoice, or returns the existing row when the
	// (broker, invoice number) pair is already stored. The bool reports
	// deduplication.
	UpsertByNumber(ctx context.Context, req *CreateInvoiceRequest) (*entity.Invoice, bool, error)
	GetByBrokerAndNumber(ctx context.Context, brokerID uuid.UUID, invoiceNumber string) (*entity.Invoice, error)
	Query(ctx context.Context, brokerID uuid.UUID, filter InvoiceFilter) ([]*entity.Invoice, error)
}

type invoiceRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewInvoiceRepository(db *DB, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{db: db, logger: logger}
}

func (r *invoiceRepository) GetByBrokerAndNumber(ctx context.Context, brokerID uuid.UUID, invoiceNumber string) (*entity.Invoice, error) {
	var inv entity.Invoice
	err := r.db.GetContext(ctx, &inv,
		`SELECT * FROM invoices WHERE broker_id = ? AND invoice_number = ?`,
		brokerID.String(), invoiceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *invoiceRepository) UpsertByNumber(ctx context.Context, req *CreateInvoiceRequest) (*entity.Invoice, bool, error) {
	if existing, err := r.GetByBrokerAndNumber(ctx, req.BrokerID, req.InvoiceNumber); err == nil {
		r.logger.Info("invoice already exists",
			"broker_id", req.BrokerID, "invoice_number", req.InvoiceNumber, "invoice_id", existing.ID)
		return existing, true, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, false, err
	}

	inv := &entity.Invoice{
		ID:            uuid.New(),
		BrokerID:      req.BrokerID,
		EmailID:       req.EmailID,
		PDFPath:       req.PDFPath,
		InvoiceNumber: req.InvoiceNumber,
		Carrier:       req.Carrier,
		Amount:        req.Amount,
		Currency:      req.Currency,
		DueDate:       req.DueDate,
		Status:        string(constants.InvoiceStatusUnpaid),
		ExtractedJSON: req.ExtractedJSON,
		CreatedAt:     time.Now().UTC(),
	}
	const q = `
		INSERT INTO invoices (id, broker_id, email_id, pdf_path, invoice_number, carrier,
			amount, currency, due_date, status, extracted_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		inv.ID.String(), inv.BrokerID.String(), inv.EmailID.String(), inv.PDFPath,
		inv.InvoiceNumber, inv.Carrier, inv.Amount, inv.Currency, inv.DueDate,
		inv.Status, inv.ExtractedJSON, inv.CreatedAt)
	if err != nil {
		// Constraint rejection from a concurrent writer resolves to the
		// pre-existing record, same as the check above.
		if isUniqueViolation(err) {
			if existing, gerr := r.GetByBrokerAndNumber(ctx, req.BrokerID, req.InvoiceNumber); gerr == nil {
				return existing, true, nil
			}
		}
		r.logger.Error("failed to create invoice",
			"broker_id", req.BrokerID, "invoice_number", req.InvoiceNumber, "error", err)
		return nil, false, fmt.Errorf("create invoice: %w", err)
	}
	r.logger.Info("stored new invoice", "invoice_id", inv.ID, "invoice_number", inv.InvoiceNumber)
	return inv, false, nil
}

func (r *invoiceRepository) Query(ctx context.Context, brokerID uuid.UUID, filter InvoiceFilter) ([]*entity.Invoice, error) {
	q := `SELECT * FROM invoices WHERE broker_id = ?`
	args := []any{brokerID.String()}
	if filter.Status != "" {
		q += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Carrier != "" {
		q += ` AND carrier LIKE ? COLLATE NOCASE`
		args = append(args, "%"+filter.Carrier+"%")
	}
	q += ` ORDER BY created_at DESC`

	var out []*entity.Invoice
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	return out, nil
}
