package entity

import (
	"time"

	"github.com/google/uuid"
)

// Invoice represents an extracted invoice record.
// (BrokerID, InvoiceNumber) is unique; a second extraction of the same
// invoice resolves to the existing row.
type Invoice struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	BrokerID      uuid.UUID  `db:"broker_id" json:"broker_id"`
	EmailID       uuid.UUID  `db:"email_id" json:"email_id"`
	PDFPath       string     `db:"pdf_path" json:"pdf_path"`
	InvoiceNumber string     `db:"invoice_number" json:"invoice_number"`
	Carrier       string     `db:"carrier" json:"carrier"`
	Amount        float64    `db:"amount" json:"amount"`
	Currency      string     `db:"currency" json:"currency"`
	DueDate       *time.Time `db:"due_date" json:"due_date,omitempty"`
	Status        string     `db:"status" json:"status"`
	ExtractedJSON string     `db:"extracted_json" json:"extracted_json,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
