package types

import (
	"fmt"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(t time.Time) *Date {
	d := Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
	return &d
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// TimePtr returns nil for a nil date, for storage drivers.
func (d *Date) TimePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// Bill is one invoice line item, flattened with its invoice header.
type Bill struct {
	ID            int64    `json:"id"`
	FormNo        *string  `json:"form_no"`
	SerialNo      *string  `json:"serial_no"`
	InvoiceNo     *string  `json:"invoice_no"`
	IssuedDate    *Date    `json:"issued_date"`
	SellerName    *string  `json:"seller_name"`
	SellerTaxCode *string  `json:"seller_tax_code"`
	ItemName      *string  `json:"item_name"`
	Unit          *string  `json:"unit"`
	Quantity      *float64 `json:"quantity"`
	UnitPrice     *float64 `json:"unit_price"`
	TotalAmount   *float64 `json:"total_amount"`
	VatRate       *float64 `json:"vat_rate"` // percent, 10 means 10%
	VatAmount     *float64 `json:"vat_amount"`
}

// BillPatch is a partial update. Nil fields are left unchanged.
type BillPatch struct {
	FormNo        *string  `json:"form_no"`
	SerialNo      *string  `json:"serial_no"`
	InvoiceNo     *string  `json:"invoice_no"`
	IssuedDate    *Date    `json:"issued_date"`
	SellerName    *string  `json:"seller_name"`
	SellerTaxCode *string  `json:"seller_tax_code"`
	ItemName      *string  `json:"item_name"`
	Unit          *string  `json:"unit"`
	Quantity      *float64 `json:"quantity"`
	UnitPrice     *float64 `json:"unit_price"`
	TotalAmount   *float64 `json:"total_amount"`
	VatRate       *float64 `json:"vat_rate"`
	VatAmount     *float64 `json:"vat_amount"`
}

// Empty reports whether the patch changes nothing.
func (p BillPatch) Empty() bool {
	return p == BillPatch{}
}

// Apply copies the set fields of p onto b.
func (p BillPatch) Apply(b *Bill) {
	if p.FormNo != nil {
		b.FormNo = p.FormNo
	}
	if p.SerialNo != nil {
		b.SerialNo = p.SerialNo
	}
	if p.InvoiceNo != nil {
		b.InvoiceNo = p.InvoiceNo
	}
	if p.IssuedDate != nil {
		b.IssuedDate = p.IssuedDate
	}
	if p.SellerName != nil {
		b.SellerName = p.SellerName
	}
	if p.SellerTaxCode != nil {
		b.SellerTaxCode = p.SellerTaxCode
	}
	if p.ItemName != nil {
		b.ItemName = p.ItemName
	}
	if p.Unit != nil {
		b.Unit = p.Unit
	}
	if p.Quantity != nil {
		b.Quantity = p.Quantity
	}
	if p.UnitPrice != nil {
		b.UnitPrice = p.UnitPrice
	}
	if p.TotalAmount != nil {
		b.TotalAmount = p.TotalAmount
	}
	if p.VatRate != nil {
		b.VatRate = p.VatRate
	}
	if p.VatAmount != nil {
		b.VatAmount = p.VatAmount
	}
}

// BillPage is one page of a paginated listing.
type BillPage struct {
	Items      []Bill `json:"items"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

// StrPtr and FloatPtr help building bills in tests and extractors.
func StrPtr(s string) *string { return &s }

func FloatPtr(f float64) *float64 { return &f }
