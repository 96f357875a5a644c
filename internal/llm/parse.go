package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeResponse turns a raw model reply into InvoiceFields. Providers may
// wrap the JSON document in markdown code fences; those are stripped before
// validation. A document that fails schema validation or JSON decoding is a
// hard error for this attempt.
func DecodeResponse(reply string) (InvoiceFields, []byte, error) {
	clean := StripCodeFences(reply)
	raw := []byte(clean)

	if err := ValidateJSONAgainstSchema(BuildInvoiceJSONSchema(), raw); err != nil {
		return InvoiceFields{}, raw, fmt.Errorf("model response rejected: %w", err)
	}

	var fields InvoiceFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return InvoiceFields{}, raw, fmt.Errorf("decode fields: %w", err)
	}
	return fields, raw, nil
}

// StripCodeFences removes markdown code-fence markers and surrounding
// whitespace from a model reply.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
