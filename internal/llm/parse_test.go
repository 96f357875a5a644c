package llm

import (
	"strings"
	"testing"
)

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  \n```json\n{\"a\":1}\n```\n ", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := StripCodeFences(tc.in); got != tc.want {
				t.Fatalf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDecodeResponse_ValidReply(t *testing.T) {
	reply := "```json\n" + `{
		"invoice_number": "INV-42",
		"carrier": "Knight Logistics",
		"amount": 987.65,
		"currency": "USD",
		"due_date": "2026-09-30",
		"load_id": null
	}` + "\n```"

	fields, raw, err := DecodeResponse(reply)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if fields.InvoiceNumber == nil || *fields.InvoiceNumber != "INV-42" {
		t.Fatalf("invoice_number = %v", fields.InvoiceNumber)
	}
	if fields.Amount == nil || *fields.Amount != 987.65 {
		t.Fatalf("amount = %v", fields.Amount)
	}
	if fields.LoadID != nil {
		t.Fatalf("load_id = %v, want nil", *fields.LoadID)
	}
	if len(raw) == 0 || !strings.Contains(string(raw), "INV-42") {
		t.Fatalf("raw = %q", raw)
	}
}

func TestDecodeResponse_AllNulls(t *testing.T) {
	reply := `{"invoice_number":null,"carrier":null,"amount":null,"currency":null,"due_date":null,"load_id":null}`
	fields, _, err := DecodeResponse(reply)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if fields.InvoiceNumber != nil || fields.Carrier != nil || fields.Amount != nil {
		t.Fatalf("expected all-nil fields, got %+v", fields)
	}
}

func TestDecodeResponse_RejectsBadShape(t *testing.T) {
	cases := []struct {
		name  string
		reply string
	}{
		{"not json", "the invoice number is INV-1"},
		{"amount as string", `{"invoice_number":"A","carrier":"B","amount":"12.50","currency":"USD","due_date":null,"load_id":null}`},
		{"bad due date", `{"invoice_number":"A","carrier":"B","amount":1,"currency":"USD","due_date":"September 30th","load_id":null}`},
		{"extra key", `{"invoice_number":"A","carrier":"B","amount":1,"currency":"USD","due_date":null,"load_id":null,"total":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := DecodeResponse(tc.reply); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
