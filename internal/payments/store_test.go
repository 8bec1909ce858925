package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

func TestByCustomerNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, amt := range []string{"1", "2", "3"} {
		put, err := f.payments.Put(model.Payment{CustomerID: "a@x.com", Timestamp: base.Add(time.Duration(i) * time.Minute), Amount: decimal.RequireFromString(amt)})
		if err != nil {
			t.Fatal(err)
		}
		if err := f.mem.TransactWrite(ctx, put); err != nil {
			t.Fatal(err)
		}
	}

	ps, err := f.payments.ByCustomer(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 3 {
		t.Fatalf("expected 3 payments, got %d", len(ps))
	}
	if !ps[0].Amount.Equal(decimal.NewFromInt(3)) || !ps[2].Timestamp.Equal(base) {
		t.Fatalf("payments not newest first: %+v", ps)
	}
	if other, _ := f.payments.ByCustomer(ctx, "b@x.com"); len(other) != 0 {
		t.Fatal("payments leaked across customers")
	}
}

func TestPutRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := model.Payment{CustomerID: "a@x.com", Timestamp: time.Now(), Amount: decimal.NewFromInt(5)}
	put, err := f.payments.Put(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.mem.TransactWrite(ctx, put); err != nil {
		t.Fatal(err)
	}
	if err := f.mem.TransactWrite(ctx, put); !errors.Is(err, table.ErrTransactionCanceled) {
		t.Fatalf("expected second append of the same payment to be canceled, got %v", err)
	}
}
