package llm

// SchemaPrompt is the fixed instruction template shared by every provider.
// It pins the exact JSON shape so responses can be validated against
// BuildInvoiceJSONSchema before decoding.
const SchemaPrompt = `
Extract the following fields from the invoice text and return ONLY valid JSON:
{
  "invoice_number": "string",
  "carrier": "string (Carrier Name OR Store/Merchant Name)",
  "amount": number,
  "currency": "string (USD, CAD, etc defaults to USD)",
  "due_date": "YYYY-MM-DD" or null,
  "load_id": "string" or null
}
If a field is not found, use null.
If you see a Store Name (e.g. Walmart, Target) instead of a Logistics Carrier, use that as the "carrier".
`
