package constants

// InvoiceStatus is the canonical status for rows in invoices.
type InvoiceStatus string

// Stable values (store these exact strings in DB).
const (
	InvoiceStatusUnpaid InvoiceStatus = "UNPAID" // default at creation
	InvoiceStatusPaid   InvoiceStatus = "PAID"   // set by downstream payment reconciliation
)

// ValidInvoiceStatus reports whether s is one of the stable status values.
func ValidInvoiceStatus(s string) bool {
	switch InvoiceStatus(s) {
	case InvoiceStatusUnpaid, InvoiceStatusPaid:
		return true
	}
	return false
}
