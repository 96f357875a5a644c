package llm

// BuildInvoiceJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. Every field is nullable: the prompt instructs models to use
// null for fields they cannot find, and downstream code supplies defaults.
func BuildInvoiceJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"invoice_number": nullable("string"),
			"carrier":        nullable("string"),
			"amount":         nullable("number"),
			"currency":       nullable("string"),
			"due_date": map[string]any{
				"anyOf": []any{
					map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
					map[string]any{"type": "null"},
				},
			},
			"load_id": nullable("string"),
		},
	}
}

func nullable(typ string) map[string]any {
	return map[string]any{"type": []any{typ, "null"}}
}
