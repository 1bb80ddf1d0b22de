package ocr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bill2sheet/types"
)

// date layouts the model is known to answer with, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
}

// wire shape of the model answer: values may come back as strings or numbers
type rawResult struct {
	Invoice struct {
		FormNo        any `json:"form_no"`
		SerialNo      any `json:"serial_no"`
		InvoiceNo     any `json:"invoice_no"`
		IssuedDate    any `json:"issued_date"`
		SellerName    any `json:"seller_name"`
		SellerTaxCode any `json:"seller_tax_code"`
	} `json:"invoice"`
	Items []struct {
		ItemName    any `json:"item_name"`
		Unit        any `json:"unit"`
		Quantity    any `json:"quantity"`
		UnitPrice   any `json:"unit_price"`
		TotalAmount any `json:"total_amount"`
		VatRate     any `json:"vat_rate"`
		VatAmount   any `json:"vat_amount"`
	} `json:"items"`
}

// ParseResponse decodes the model text into a Result.
func ParseResponse(text string) (Result, error) {
	text = StripCodeFences(text)
	if text == "" {
		return Result{}, ErrNoContent
	}
	var raw rawResult
	if err := sonic.UnmarshalString(text, &raw); err != nil {
		return Result{}, fmt.Errorf("parse ocr json: %w", err)
	}
	res := Result{
		Invoice: Invoice{
			FormNo:        asString(raw.Invoice.FormNo),
			SerialNo:      asString(raw.Invoice.SerialNo),
			InvoiceNo:     asString(raw.Invoice.InvoiceNo),
			IssuedDate:    ParseDate(asString(raw.Invoice.IssuedDate)),
			SellerName:    asString(raw.Invoice.SellerName),
			SellerTaxCode: asString(raw.Invoice.SellerTaxCode),
		},
		Items: make([]Item, 0, len(raw.Items)),
	}
	for _, it := range raw.Items {
		res.Items = append(res.Items, Item{
			ItemName:    asString(it.ItemName),
			Unit:        asString(it.Unit),
			Quantity:    asNumber(it.Quantity),
			UnitPrice:   asNumber(it.UnitPrice),
			TotalAmount: asNumber(it.TotalAmount),
			VatRate:     asNumber(it.VatRate),
			VatAmount:   asNumber(it.VatAmount),
		})
	}
	return res, nil
}

// StripCodeFences removes a ```json ... ``` wrapper if the model added one.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return strings.Trim(text, "`")
	}
	return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
}

// ParseDate accepts the date layouts listed above and returns nil for anything else.
func ParseDate(s *string) *types.Date {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return types.NewDate(t)
		}
	}
	return nil
}

func asString(v any) *string {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		return &s
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s
	}
	return nil
}

func asNumber(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case int64:
		f := float64(x)
		return &f
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, " ", "")
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}
