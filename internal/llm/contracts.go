package llm

import "context"

// InvoiceFields is the structured record we ask every provider to extract.
// Pointer fields preserve the distinction between "absent/null" and a zero
// value; normalizing missing fields is the caller's job, not ours.
type InvoiceFields struct {
	InvoiceNumber *string  `json:"invoice_number"`
	Carrier       *string  `json:"carrier"`
	Amount        *float64 `json:"amount"`
	Currency      *string  `json:"currency"`
	DueDate       *string  `json:"due_date"` // YYYY-MM-DD
	LoadID        *string  `json:"load_id"`
}

// ProviderClient is the uniform "text in, structured record out" contract
// each AI backend implements. The raw JSON document is returned alongside
// the decoded fields for persistence and debugging.
type ProviderClient interface {
	Name() string
	ExtractFields(ctx context.Context, text string) (InvoiceFields, []byte, error)
}
