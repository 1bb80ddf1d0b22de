// Package repository stores extracted bill rows.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/moyoez/bill2sheet/types"
)

// ErrNotFound is returned when no bill has the requested id.
var ErrNotFound = errors.New("bill not found")

// BillRepository is the storage contract used by the bill handlers, the OCR dispatcher
// and the exporter. A limit of 0 on List means no limit.
type BillRepository interface {
	List(ctx context.Context, skip, limit int) ([]types.Bill, error)
	Count(ctx context.Context) (int64, error)
	Get(ctx context.Context, id int64) (types.Bill, error)
	Create(ctx context.Context, bill types.Bill) (types.Bill, error)
	CreateMany(ctx context.Context, bills []types.Bill) ([]types.Bill, error)
	Update(ctx context.Context, id int64, patch types.BillPatch) (types.Bill, error)
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, invoiceNo string) ([]types.Bill, error)
}

// PoolStats is reported by the health endpoint.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

// HealthChecker is implemented by repositories that can report their backend state.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Stats() PoolStats
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Paginate returns page (1-based) of the bills ordered by id.
func Paginate(ctx context.Context, repo BillRepository, page, pageSize int) (types.BillPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	total, err := repo.Count(ctx)
	if err != nil {
		return types.BillPage{}, fmt.Errorf("count bills: %w", err)
	}
	items, err := repo.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return types.BillPage{}, fmt.Errorf("list bills: %w", err)
	}
	if items == nil {
		items = []types.Bill{}
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return types.BillPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}
