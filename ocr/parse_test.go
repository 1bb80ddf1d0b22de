package ocr

import (
	"errors"
	"testing"

	"cloud.google.com/go/vertexai/genai"
)

const fenced = "```json\n" + `{
  "invoice": {"form_no": "1", "serial_no": "C25TAA", "invoice_no": "0000123", "issued_date": "14/02/2025",
              "seller_name": "Công ty ABC", "seller_tax_code": null},
  "items": [
    {"item_name": "Cà phê", "unit": "kg", "quantity": 2, "unit_price": "50,000", "total_amount": 100000, "vat_rate": "10%", "vat_amount": 10000},
    {"item_name": "Trà", "unit": "hộp", "quantity": null, "unit_price": null, "total_amount": null, "vat_rate": 8, "vat_amount": null}
  ]
}` + "\n```"

func TestParseResponse(t *testing.T) {
	res, err := ParseResponse(fenced)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if res.Invoice.IssuedDate == nil || res.Invoice.IssuedDate.String() != "2025-02-14" {
		t.Errorf("issued date = %v", res.Invoice.IssuedDate)
	}
	if res.Invoice.SellerTaxCode != nil {
		t.Error("null tax code should stay nil")
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d", len(res.Items))
	}
	first := res.Items[0]
	if *first.UnitPrice != 50000 || *first.VatRate != 10 || *first.Quantity != 2 {
		t.Errorf("numbers not normalized: %+v", first)
	}
	if res.Items[1].Quantity != nil {
		t.Error("null quantity should stay nil")
	}

	bills := res.Bills()
	if len(bills) != 2 {
		t.Fatalf("bills = %d", len(bills))
	}
	for _, b := range bills {
		if b.InvoiceNo == nil || *b.InvoiceNo != "0000123" || b.SerialNo == nil || *b.SerialNo != "C25TAA" {
			t.Errorf("invoice header not merged: %+v", b)
		}
	}
}

func TestParseDateLayouts(t *testing.T) {
	for in, want := range map[string]string{
		"2025-02-14": "2025-02-14",
		"14/02/2025": "2025-02-14",
		"14-02-2025": "2025-02-14",
		"2025/02/14": "2025-02-14",
		"02/30/2025": "",
	} {
		got := ParseDate(&in)
		switch {
		case want == "" && got != nil:
			t.Errorf("%s: expected nil, got %s", in, got)
		case want != "" && (got == nil || got.String() != want):
			t.Errorf("%s: got %v, want %s", in, got, want)
		}
	}
}

func TestHeaderOnlyInvoice(t *testing.T) {
	res, err := ParseResponse(`{"invoice":{"invoice_no":"9"},"items":[]}`)
	if err != nil {
		t.Fatal(err)
	}
	bills := res.Bills()
	if len(bills) != 1 || *bills[0].InvoiceNo != "9" {
		t.Errorf("bills = %+v", bills)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := ParseResponse("   "); !errors.Is(err, ErrNoContent) {
		t.Errorf("blank = %v", err)
	}
	if _, err := ParseResponse("not json"); err == nil {
		t.Error("expected parse error")
	}
}

func TestResponseText(t *testing.T) {
	if _, err := responseText(nil); !errors.Is(err, ErrNoContent) {
		t.Errorf("nil response = %v", err)
	}
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"invoice":`), genai.Text(`{}}`)}},
	}}}
	text, err := responseText(resp)
	if err != nil || text != `{"invoice":{}}` {
		t.Errorf("text = %q, %v", text, err)
	}
}
