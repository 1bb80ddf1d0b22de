// Package export renders bills as CSV or XLSX files.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/moyoez/bill2sheet/types"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

const (
	sheetName = "Bills"
	// built-in excel number format "0%"
	percentNumFmt = 9
	// built-in excel number format "#,##0.00"
	currencyNumFmt = 4
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Headers are the column titles, in column order.
var Headers = []string{
	"ID",
	"Số tờ khai",
	"Ký hiệu",
	"Số hóa đơn",
	"Ngày phát hành",
	"Tên người bán",
	"Mã số thuế",
	"Tên hàng hóa",
	"Đơn vị tính",
	"Số lượng",
	"Đơn giá",
	"Thành tiền",
	"Thuế suất VAT",
	"Tiền thuế VAT",
}

// ParseFormat accepts csv or xlsx, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case CSV, "":
		return CSV, nil
	case XLSX:
		return XLSX, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func (f Format) Extension() string {
	return string(f)
}

// Export renders bills in format.
func Export(bills []types.Bill, format Format) ([]byte, error) {
	switch format {
	case CSV:
		return ToCSV(bills)
	case XLSX:
		return ToXLSX(bills)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// ToCSV writes a UTF-8 CSV with a byte order mark so spreadsheet apps pick the right encoding.
func ToCSV(bills []types.Bill) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)
	w := csv.NewWriter(&buf)
	if err := w.Write(Headers); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, b := range bills {
		record := []string{
			strconv.FormatInt(b.ID, 10),
			str(b.FormNo),
			str(b.SerialNo),
			str(b.InvoiceNo),
			date(b.IssuedDate),
			str(b.SellerName),
			str(b.SellerTaxCode),
			str(b.ItemName),
			str(b.Unit),
			number(b.Quantity),
			money(b.UnitPrice),
			money(b.TotalAmount),
			percent(b.VatRate),
			money(b.VatAmount),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", b.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ToXLSX writes one sheet with a bold header row. VAT rates are stored as fractions
// with a percent format.
func ToXLSX(bills []types.Bill) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(Headers))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("apply header style: %w", err)
	}

	for i, b := range bills {
		row := []any{
			b.ID,
			cell(b.FormNo),
			cell(b.SerialNo),
			cell(b.InvoiceNo),
			date(b.IssuedDate),
			cell(b.SellerName),
			cell(b.SellerTaxCode),
			cell(b.ItemName),
			cell(b.Unit),
			cellNum(b.Quantity),
			cellNum(b.UnitPrice),
			cellNum(b.TotalAmount),
			nil,
			cellNum(b.VatAmount),
		}
		if b.VatRate != nil {
			row[12] = *b.VatRate / 100
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, start, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", b.ID, err)
		}
	}

	if len(bills) > 0 {
		last := len(bills) + 1
		pct, err := f.NewStyle(&excelize.Style{NumFmt: percentNumFmt})
		if err != nil {
			return nil, fmt.Errorf("percent style: %w", err)
		}
		if err := f.SetCellStyle(sheetName, "M2", fmt.Sprintf("M%d", last), pct); err != nil {
			return nil, fmt.Errorf("apply percent style: %w", err)
		}
		cur, err := f.NewStyle(&excelize.Style{NumFmt: currencyNumFmt})
		if err != nil {
			return nil, fmt.Errorf("currency style: %w", err)
		}
		for _, col := range []string{"K", "L", "N"} {
			if err := f.SetCellStyle(sheetName, col+"2", fmt.Sprintf("%s%d", col, last), cur); err != nil {
				return nil, fmt.Errorf("apply currency style: %w", err)
			}
		}
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 16); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func date(d *types.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func number(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func money(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}

func percent(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64) + "%"
}

func cell(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func cellNum(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
