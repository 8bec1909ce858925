package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/orders"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

const (
	mainTable     = "market"
	paymentsTable = "payments"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (r *countingRecorder) Count(ctx context.Context, metric string, value float64, dims map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]float64{}
	}
	r.counts[metric+"/"+dims["Outcome"]] += value
}

type fixture struct {
	mem      *table.Memory
	orders   *orders.Store
	payments *Store
	metrics  *countingRecorder
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := table.NewMemory(codec.MainSchema(mainTable), codec.PaymentsSchema(paymentsTable))
	f := &fixture{
		mem:      mem,
		orders:   orders.NewStore(mem, mainTable),
		payments: NewStore(mem, paymentsTable),
		metrics:  &countingRecorder{},
	}
	f.coord = NewCoordinator(mem, f.orders, f.payments, nil, f.metrics)
	return f
}

func (f *fixture) openOrder(t *testing.T, id, email string) model.Order {
	t.Helper()
	lines := []model.OrderedProduct{{ProductID: "P1", Name: "Go book", Price: decimal.RequireFromString("9.99"), Quantity: 2}}
	o := model.Order{
		ID:            id,
		CustomerEmail: email,
		Status:        model.StatusOpen,
		CreatedAt:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		Total:         model.Total(lines),
	}
	if err := f.orders.Create(context.Background(), o, lines); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

var amount = decimal.RequireFromString("19.98")

func TestPayOrder_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")

	got, err := f.coord.PayOrder(ctx, "a@x.com", "O1", amount)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if got != model.PaymentSuccess {
		t.Fatalf("outcome = %s, want SUCCESS", got)
	}

	o, err := f.orders.Get(ctx, "O1")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != model.StatusPaid {
		t.Fatalf("canonical status = %s", o.Status)
	}
	cos, err := f.orders.ByCustomer(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(cos) != 1 || cos[0].Status != model.StatusPaid {
		t.Fatalf("customer view not updated: %+v", cos)
	}
	if !cos[0].Total.Equal(o.Total) || !cos[0].CreatedAt.Equal(o.CreatedAt) {
		t.Fatalf("snapshot fields not carried over: %+v", cos[0])
	}
	paid, err := f.orders.ByStatus(ctx, model.StatusPaid, "")
	if err != nil || len(paid) != 1 {
		t.Fatalf("expected one PAID order in index, got %d (%v)", len(paid), err)
	}

	ps, err := f.payments.ByCustomer(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 || !ps[0].Amount.Equal(amount) {
		t.Fatalf("unexpected payments %+v", ps)
	}
	if f.metrics.counts["PaymentOutcome/SUCCESS"] != 1 {
		t.Fatalf("metric not recorded: %v", f.metrics.counts)
	}
}

func TestPayOrder_AlreadyPaidIsSkippedWithoutWrites(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")
	if _, err := f.coord.PayOrder(ctx, "a@x.com", "O1", amount); err != nil {
		t.Fatal(err)
	}

	before := f.mem.Writes()
	got, err := f.coord.PayOrder(ctx, "a@x.com", "O1", amount)
	if err != nil {
		t.Fatal(err)
	}
	if got != model.PaymentSkipped {
		t.Fatalf("outcome = %s, want SKIPPED", got)
	}
	if f.mem.Writes() != before {
		t.Fatal("skipped payment wrote rows")
	}
	if ps, _ := f.payments.ByCustomer(ctx, "a@x.com"); len(ps) != 1 {
		t.Fatalf("expected one payment, got %d", len(ps))
	}
}

func TestPayOrder_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.coord.PayOrder(context.Background(), "a@x.com", "missing", amount)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPayOrder_NotAllowed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")
	f.openOrder(t, "O2", "a@x.com")
	if _, err := f.orders.Deliver(ctx, "O2"); err != nil {
		t.Fatal(err)
	}
	before := f.mem.Writes()

	cases := []struct {
		name     string
		customer string
		order    string
	}{
		{"someone else's order", "b@x.com", "O1"},
		{"delivered order", "a@x.com", "O2"},
	}
	for _, tc := range cases {
		got, err := f.coord.PayOrder(ctx, tc.customer, tc.order, amount)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != model.PaymentNotAllowed {
			t.Errorf("%s: outcome = %s, want NOT_ALLOWED", tc.name, got)
		}
	}
	if f.mem.Writes() != before {
		t.Fatal("rejected payments wrote rows")
	}
}

func TestPayOrder_InvalidAmount(t *testing.T) {
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")
	for _, a := range []decimal.Decimal{decimal.Zero, decimal.RequireFromString("-1")} {
		if _, err := f.coord.PayOrder(context.Background(), "a@x.com", "O1", a); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %s: expected ErrInvalidAmount, got %v", a, err)
		}
	}
}

// barrierOrders holds every reader until all of them have read, so each
// concurrent payment starts from the same OPEN snapshot.
type barrierOrders struct {
	Orders
	wg *sync.WaitGroup
}

func (b barrierOrders) Get(ctx context.Context, id string) (*model.Order, error) {
	o, err := b.Orders.Get(ctx, id)
	b.wg.Done()
	b.wg.Wait()
	return o, err
}

func TestPayOrder_ConcurrentPaymentsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")

	const payers = 2
	var barrier sync.WaitGroup
	barrier.Add(payers)
	coord := NewCoordinator(f.mem, barrierOrders{Orders: f.orders, wg: &barrier}, f.payments, nil, nil)

	results := make([]model.PaymentOutcome, payers)
	errs := make([]error, payers)
	var done sync.WaitGroup
	for i := 0; i < payers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			results[i], errs[i] = coord.PayOrder(ctx, "a@x.com", "O1", amount)
		}(i)
	}
	done.Wait()

	counts := map[model.PaymentOutcome]int{}
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("payer %d: %v", i, errs[i])
		}
		counts[results[i]]++
	}
	if counts[model.PaymentSuccess] != 1 || counts[model.PaymentNotAllowed] != 1 {
		t.Fatalf("unexpected outcomes %v", results)
	}

	ps, err := f.payments.ByCustomer(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 {
		t.Fatalf("expected exactly one payment row, got %d", len(ps))
	}
	cos, err := f.orders.ByCustomer(ctx, "a@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(cos) != 1 || cos[0].Status != model.StatusPaid {
		t.Fatalf("expected a single PAID projection, got %+v", cos)
	}
}

type failingClient struct {
	table.Client
	err error
}

func (f failingClient) TransactWrite(ctx context.Context, items ...table.TransactItem) error {
	return f.err
}

func TestPayOrder_TransientErrorsSurface(t *testing.T) {
	f := newFixture(t)
	f.openOrder(t, "O1", "a@x.com")
	boom := errors.New("throttled")
	coord := NewCoordinator(failingClient{Client: f.mem, err: boom}, f.orders, f.payments, nil, nil)

	_, err := coord.PayOrder(context.Background(), "a@x.com", "O1", amount)
	if !errors.Is(err, boom) {
		t.Fatalf("expected transient error to surface, got %v", err)
	}
}

func TestPayOrder_CanceledTransactionIsNotAllowed(t *testing.T) {
	cases := map[string][]string{
		"transaction conflict": {"None", "TransactionConflict", "None", "None"},
		"condition failed":     {"None", "ConditionalCheckFailed", "None", "None"},
		"no reasons":           nil,
	}
	for name, reasons := range cases {
		f := newFixture(t)
		f.openOrder(t, "O1", "a@x.com")
		canceled := &table.CanceledError{Reasons: reasons}
		coord := NewCoordinator(failingClient{Client: f.mem, err: canceled}, f.orders, f.payments, nil, f.metrics)

		out, err := coord.PayOrder(context.Background(), "a@x.com", "O1", amount)
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", name, err)
		}
		if out != model.PaymentNotAllowed {
			t.Fatalf("%s: expected %s, got %s", name, model.PaymentNotAllowed, out)
		}
		if f.metrics.counts["PaymentOutcome/"+string(model.PaymentNotAllowed)] != 1 {
			t.Fatalf("%s: expected one not-allowed metric, got %v", name, f.metrics.counts)
		}
	}
}
