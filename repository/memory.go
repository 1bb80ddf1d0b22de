package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/moyoez/bill2sheet/types"
)

// MemoryBills keeps bills in process memory. It is used when no database is configured
// and in tests.
type MemoryBills struct {
	mu     sync.RWMutex
	bills  map[int64]types.Bill
	nextID int64
}

var (
	_ BillRepository = (*MemoryBills)(nil)
	_ HealthChecker  = (*MemoryBills)(nil)
)

func NewMemoryBills() *MemoryBills {
	return &MemoryBills{bills: make(map[int64]types.Bill), nextID: 1}
}

func (m *MemoryBills) sorted() []types.Bill {
	out := make([]types.Bill, 0, len(m.bills))
	for _, b := range m.bills {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryBills) List(_ context.Context, skip, limit int) ([]types.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.sorted()
	if skip < 0 {
		skip = 0
	}
	if skip >= len(all) {
		return []types.Bill{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (m *MemoryBills) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.bills)), nil
}

func (m *MemoryBills) Get(_ context.Context, id int64) (types.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[id]
	if !ok {
		return types.Bill{}, ErrNotFound
	}
	return b, nil
}

func (m *MemoryBills) Create(ctx context.Context, bill types.Bill) (types.Bill, error) {
	created, err := m.CreateMany(ctx, []types.Bill{bill})
	if err != nil {
		return types.Bill{}, err
	}
	return created[0], nil
}

func (m *MemoryBills) CreateMany(_ context.Context, bills []types.Bill) ([]types.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := make([]types.Bill, 0, len(bills))
	for _, b := range bills {
		b.ID = m.nextID
		m.nextID++
		m.bills[b.ID] = b
		created = append(created, b)
	}
	return created, nil
}

func (m *MemoryBills) Update(_ context.Context, id int64, patch types.BillPatch) (types.Bill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return types.Bill{}, ErrNotFound
	}
	patch.Apply(&b)
	m.bills[id] = b
	return b, nil
}

func (m *MemoryBills) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bills[id]; !ok {
		return ErrNotFound
	}
	delete(m.bills, id)
	return nil
}

func (m *MemoryBills) Search(_ context.Context, invoiceNo string) ([]types.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(invoiceNo)
	out := make([]types.Bill, 0)
	for _, b := range m.sorted() {
		if b.InvoiceNo != nil && strings.Contains(strings.ToLower(*b.InvoiceNo), needle) {
			out = append(out, b)
		}
	}
	// newest first, undated last
	sort.SliceStable(out, func(i, j int) bool {
		di, dj := out[i].IssuedDate, out[j].IssuedDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(dj.Time)
		}
	})
	return out, nil
}

func (m *MemoryBills) Ping(context.Context) error { return nil }

func (m *MemoryBills) Stats() PoolStats { return PoolStats{} }
