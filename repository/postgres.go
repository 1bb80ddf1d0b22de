package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moyoez/bill2sheet/types"
)

const billColumns = `id, form_no, serial_no, invoice_no, issued_date, seller_name, seller_tax_code,
	item_name, unit, quantity, unit_price, total_amount, vat_rate, vat_amount`

// PostgresBills keeps bills in the bills table.
type PostgresBills struct {
	pool *pgxpool.Pool
}

var (
	_ BillRepository = (*PostgresBills)(nil)
	_ HealthChecker  = (*PostgresBills)(nil)
)

func NewPostgresBills(pool *pgxpool.Pool) *PostgresBills {
	return &PostgresBills{pool: pool}
}

func scanBill(row pgx.CollectableRow) (types.Bill, error) {
	var (
		b      types.Bill
		issued *time.Time
	)
	err := row.Scan(&b.ID, &b.FormNo, &b.SerialNo, &b.InvoiceNo, &issued, &b.SellerName, &b.SellerTaxCode,
		&b.ItemName, &b.Unit, &b.Quantity, &b.UnitPrice, &b.TotalAmount, &b.VatRate, &b.VatAmount)
	if err != nil {
		return b, err
	}
	if issued != nil {
		b.IssuedDate = types.NewDate(*issued)
	}
	return b, nil
}

func billArgs(b types.Bill) []any {
	return []any{b.FormNo, b.SerialNo, b.InvoiceNo, b.IssuedDate.TimePtr(), b.SellerName, b.SellerTaxCode,
		b.ItemName, b.Unit, b.Quantity, b.UnitPrice, b.TotalAmount, b.VatRate, b.VatAmount}
}

func (r *PostgresBills) query(ctx context.Context, sql string, args ...any) ([]types.Bill, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanBill)
}

func (r *PostgresBills) List(ctx context.Context, skip, limit int) ([]types.Bill, error) {
	if skip < 0 {
		skip = 0
	}
	sql := `SELECT ` + billColumns + ` FROM bills ORDER BY id OFFSET $1`
	args := []any{skip}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	bills, err := r.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select bills: %w", err)
	}
	return bills, nil
}

func (r *PostgresBills) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bills`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bills: %w", err)
	}
	return n, nil
}

func (r *PostgresBills) Get(ctx context.Context, id int64) (types.Bill, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM bills WHERE id=$1`, id)
	if err != nil {
		return types.Bill{}, fmt.Errorf("select bill: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBill)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Bill{}, ErrNotFound
		}
		return types.Bill{}, fmt.Errorf("select bill: %w", err)
	}
	return b, nil
}

const insertBill = `INSERT INTO bills (form_no, serial_no, invoice_no, issued_date, seller_name, seller_tax_code,
	item_name, unit, quantity, unit_price, total_amount, vat_rate, vat_amount)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	RETURNING ` + billColumns

func (r *PostgresBills) Create(ctx context.Context, bill types.Bill) (types.Bill, error) {
	bills, err := r.CreateMany(ctx, []types.Bill{bill})
	if err != nil {
		return types.Bill{}, err
	}
	return bills[0], nil
}

// CreateMany inserts all bills in one transaction.
func (r *PostgresBills) CreateMany(ctx context.Context, bills []types.Bill) ([]types.Bill, error) {
	if len(bills) == 0 {
		return []types.Bill{}, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]types.Bill, 0, len(bills))
	for _, b := range bills {
		rows, err := tx.Query(ctx, insertBill, billArgs(b)...)
		if err != nil {
			return nil, fmt.Errorf("insert bill: %w", err)
		}
		row, err := pgx.CollectExactlyOneRow(rows, scanBill)
		if err != nil {
			return nil, fmt.Errorf("insert bill: %w", err)
		}
		created = append(created, row)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return created, nil
}

// Update applies the non-nil fields of patch.
func (r *PostgresBills) Update(ctx context.Context, id int64, patch types.BillPatch) (types.Bill, error) {
	if patch.Empty() {
		return r.Get(ctx, id)
	}
	sql := `UPDATE bills SET
		form_no = COALESCE($2, form_no),
		serial_no = COALESCE($3, serial_no),
		invoice_no = COALESCE($4, invoice_no),
		issued_date = COALESCE($5, issued_date),
		seller_name = COALESCE($6, seller_name),
		seller_tax_code = COALESCE($7, seller_tax_code),
		item_name = COALESCE($8, item_name),
		unit = COALESCE($9, unit),
		quantity = COALESCE($10, quantity),
		unit_price = COALESCE($11, unit_price),
		total_amount = COALESCE($12, total_amount),
		vat_rate = COALESCE($13, vat_rate),
		vat_amount = COALESCE($14, vat_amount)
		WHERE id=$1
		RETURNING ` + billColumns
	rows, err := r.pool.Query(ctx, sql, id,
		patch.FormNo, patch.SerialNo, patch.InvoiceNo, patch.IssuedDate.TimePtr(), patch.SellerName, patch.SellerTaxCode,
		patch.ItemName, patch.Unit, patch.Quantity, patch.UnitPrice, patch.TotalAmount, patch.VatRate, patch.VatAmount)
	if err != nil {
		return types.Bill{}, fmt.Errorf("update bill: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBill)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Bill{}, ErrNotFound
		}
		return types.Bill{}, fmt.Errorf("update bill: %w", err)
	}
	return b, nil
}

func (r *PostgresBills) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM bills WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search matches invoice numbers case-insensitively, newest issue date first.
func (r *PostgresBills) Search(ctx context.Context, invoiceNo string) ([]types.Bill, error) {
	pattern := "%" + escapeLike(invoiceNo) + "%"
	bills, err := r.query(ctx, `SELECT `+billColumns+` FROM bills
		WHERE invoice_no ILIKE $1
		ORDER BY issued_date DESC NULLS LAST, id`, pattern)
	if err != nil {
		return nil, fmt.Errorf("search bills: %w", err)
	}
	return bills, nil
}

func (r *PostgresBills) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresBills) Stats() PoolStats {
	st := r.pool.Stat()
	return PoolStats{
		TotalConns:    st.TotalConns(),
		IdleConns:     st.IdleConns(),
		AcquiredConns: st.AcquiredConns(),
		MaxConns:      st.MaxConns(),
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
