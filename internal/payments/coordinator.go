package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/orders"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// ErrInvalidAmount rejects payments that are not positive.
var ErrInvalidAmount = errors.New("payments: amount must be positive")

// Orders is the part of the order store the coordinator composes with.
type Orders interface {
	Get(ctx context.Context, id string) (*model.Order, error)
	StatusChange(o model.Order, to model.Status, at time.Time) ([]table.TransactItem, model.Order, error)
}

// Recorder counts business events.
type Recorder interface {
	Count(ctx context.Context, metric string, value float64, dims map[string]string)
}

type nopRecorder struct{}

func (nopRecorder) Count(context.Context, string, float64, map[string]string) {}

// Coordinator pays orders. The payment row, the order status and the
// customer projection are written in one transaction, so a lost race leaves
// no partial state behind.
type Coordinator struct {
	client   table.Client
	orders   Orders
	payments *Store
	metrics  Recorder
	log      *slog.Logger
	nowFunc  func() time.Time
}

// NewCoordinator wires a Coordinator. A nil logger or recorder is replaced by
// the default logger and a no-op recorder.
func NewCoordinator(client table.Client, orders Orders, payments *Store, log *slog.Logger, metrics Recorder) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Coordinator{
		client:   client,
		orders:   orders,
		payments: payments,
		metrics:  metrics,
		log:      log,
		nowFunc:  time.Now,
	}
}

// PayOrder records a payment of amount by customerID for orderID and marks
// the order PAID. It returns PaymentSkipped for an order that is already paid
// and PaymentNotAllowed when the order cannot be paid by this customer or a
// concurrent change won. A missing order is model.ErrNotFound. Lost races are
// never retried here.
func (c *Coordinator) PayOrder(ctx context.Context, customerID, orderID string, amount decimal.Decimal) (model.PaymentOutcome, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	log := c.log.With("order_id", orderID, "customer_id", customerID)

	o, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if o.Status == model.StatusPaid {
		log.Info("order already paid")
		return c.outcome(ctx, model.PaymentSkipped), nil
	}
	if o.CustomerEmail != customerID {
		log.Warn("payer does not own the order", "owner", o.CustomerEmail)
		return c.outcome(ctx, model.PaymentNotAllowed), nil
	}

	now := c.nowFunc()
	items, _, err := c.orders.StatusChange(*o, model.StatusPaid, now)
	if errors.Is(err, orders.ErrInvalidTransition) {
		log.Info("order cannot be paid", "status", o.Status)
		return c.outcome(ctx, model.PaymentNotAllowed), nil
	}
	if err != nil {
		return "", err
	}
	put, err := c.payments.Put(model.Payment{CustomerID: customerID, Timestamp: now, Amount: amount})
	if err != nil {
		return "", err
	}

	err = c.client.TransactWrite(ctx, append([]table.TransactItem{put}, items...)...)
	// A canceled transaction means another writer got to the order first,
	// whether by changing its status or by conflicting with this write.
	var ce *table.CanceledError
	if errors.As(err, &ce) {
		log.Info("payment lost a concurrent status change", "reasons", ce.Reasons)
		return c.outcome(ctx, model.PaymentNotAllowed), nil
	}
	if err != nil {
		return "", fmt.Errorf("pay order %s: %w", orderID, err)
	}

	log.Info("order paid", "amount", amount.String())
	return c.outcome(ctx, model.PaymentSuccess), nil
}

func (c *Coordinator) outcome(ctx context.Context, o model.PaymentOutcome) model.PaymentOutcome {
	c.metrics.Count(ctx, "PaymentOutcome", 1, map[string]string{"Outcome": string(o)})
	return o
}
