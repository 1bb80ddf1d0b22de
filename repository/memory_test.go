package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moyoez/bill2sheet/types"
)

func bill(invoice string, day int) types.Bill {
	b := types.Bill{InvoiceNo: types.StrPtr(invoice), ItemName: types.StrPtr("item " + invoice)}
	if day > 0 {
		b.IssuedDate = types.NewDate(time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC))
	}
	return b
}

func TestMemoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBills()

	created, err := repo.Create(ctx, bill("INV-1", 1))
	if err != nil || created.ID != 1 {
		t.Fatalf("create: %+v %v", created, err)
	}
	got, err := repo.Get(ctx, created.ID)
	if err != nil || *got.InvoiceNo != "INV-1" {
		t.Fatalf("get: %+v %v", got, err)
	}

	updated, err := repo.Update(ctx, created.ID, types.BillPatch{Unit: types.StrPtr("kg")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if *updated.Unit != "kg" || *updated.InvoiceNo != "INV-1" {
		t.Errorf("partial update lost fields: %+v", updated)
	}

	if err := repo.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
	if _, err := repo.Update(ctx, 99, types.BillPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing = %v", err)
	}
}

func TestMemorySearchOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBills()
	if _, err := repo.CreateMany(ctx, []types.Bill{bill("AB-001", 3), bill("ab-002", 9), bill("XY-1", 5), bill("AB-003", 0)}); err != nil {
		t.Fatal(err)
	}
	found, err := repo.Search(ctx, "ab")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ab-002", "AB-001", "AB-003"}
	if len(found) != len(want) {
		t.Fatalf("found %d bills, want %d", len(found), len(want))
	}
	for i, w := range want {
		if *found[i].InvoiceNo != w {
			t.Errorf("position %d: %s, want %s", i, *found[i].InvoiceNo, w)
		}
	}
}

func TestPaginate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryBills()
	for i := 0; i < 45; i++ {
		if _, err := repo.Create(ctx, bill("INV", 0)); err != nil {
			t.Fatal(err)
		}
	}
	page, err := Paginate(ctx, repo, 3, 20)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 45 || page.TotalPages != 3 || len(page.Items) != 5 || page.Items[0].ID != 41 {
		t.Errorf("page = total %d pages %d items %d", page.Total, page.TotalPages, len(page.Items))
	}

	page, err = Paginate(ctx, repo, 0, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if page.Page != 1 || page.PageSize != MaxPageSize || len(page.Items) != 45 {
		t.Errorf("clamping failed: %+v", page)
	}
}
