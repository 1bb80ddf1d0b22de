// Package ocr extracts structured invoice fields from invoice images.
package ocr

import (
	"context"
	"errors"

	"github.com/moyoez/bill2sheet/types"
)

// ErrNoContent is returned when the model answered without any text.
var ErrNoContent = errors.New("ocr response did not contain text content")

// Extractor turns one invoice image into structured fields.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// Invoice is the header shared by every line item of an invoice.
type Invoice struct {
	FormNo        *string     `json:"form_no"`
	SerialNo      *string     `json:"serial_no"`
	InvoiceNo     *string     `json:"invoice_no"`
	IssuedDate    *types.Date `json:"issued_date"`
	SellerName    *string     `json:"seller_name"`
	SellerTaxCode *string     `json:"seller_tax_code"`
}

// Item is one line of an invoice.
type Item struct {
	ItemName    *string  `json:"item_name"`
	Unit        *string  `json:"unit"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	TotalAmount *float64 `json:"total_amount"`
	VatRate     *float64 `json:"vat_rate"`
	VatAmount   *float64 `json:"vat_amount"`
}

// Result is what an Extractor found on one image.
type Result struct {
	Invoice Invoice `json:"invoice"`
	Items   []Item  `json:"items"`
}

// Bills flattens the result into one bill row per item, each carrying the invoice header.
// An invoice without items yields a single header-only row.
func (r Result) Bills() []types.Bill {
	items := r.Items
	if len(items) == 0 {
		items = []Item{{}}
	}
	bills := make([]types.Bill, 0, len(items))
	for _, it := range items {
		bills = append(bills, types.Bill{
			FormNo:        r.Invoice.FormNo,
			SerialNo:      r.Invoice.SerialNo,
			InvoiceNo:     r.Invoice.InvoiceNo,
			IssuedDate:    r.Invoice.IssuedDate,
			SellerName:    r.Invoice.SellerName,
			SellerTaxCode: r.Invoice.SellerTaxCode,
			ItemName:      it.ItemName,
			Unit:          it.Unit,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			TotalAmount:   it.TotalAmount,
			VatRate:       it.VatRate,
			VatAmount:     it.VatAmount,
		})
	}
	return bills
}
