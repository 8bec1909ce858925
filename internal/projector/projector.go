// Package projector keeps each customer's order count in step with the order
// rows of the table by consuming its change feed.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// ErrUndecodable marks a change whose row image cannot be read. Retrying such
// a change never helps.
var ErrUndecodable = errors.New("projector: undecodable change")

// MetricName is the counter emitted once per handled change, with a Result
// dimension.
const MetricName = "OrderCountChange"

const resultIgnored = "ignored"

// Counter applies order count moves. customers.Store implements it.
type Counter interface {
	ApplyOrderCount(ctx context.Context, email, orderID string, delta int64, eventID string) (customers.CountResult, error)
}

// Recorder counts business events.
type Recorder interface {
	Count(ctx context.Context, metric string, value float64, dims map[string]string)
}

type nopRecorder struct{}

func (nopRecorder) Count(context.Context, string, float64, map[string]string) {}

// Projector turns order inserts and removals into order count moves.
type Projector struct {
	counts  Counter
	metrics Recorder
	log     *slog.Logger
}

// New returns a Projector. A nil logger or recorder is replaced by the default
// logger and a no-op recorder.
func New(counts Counter, log *slog.Logger, metrics Recorder) *Projector {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Projector{counts: counts, metrics: metrics, log: log}
}

// Handle applies one change. Anything but the insert or removal of an order
// row is ignored. A redelivered change is a no-op.
func (p *Projector) Handle(ctx context.Context, ch table.Change) error {
	var delta int64
	switch ch.Operation {
	case table.OpInsert:
		delta = 1
	case table.OpRemove:
		delta = -1
	default:
		return nil
	}

	img := ch.Image()
	if img == nil {
		return fmt.Errorf("%w: %s %s carries no image", ErrUndecodable, ch.Operation, ch.EventID)
	}
	kind, err := codec.KindOf(img)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodable, ch.EventID, err)
	}
	if kind != codec.KindOrder {
		return nil
	}
	o, err := codec.DecodeOrder(img)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUndecodable, ch.EventID, err)
	}

	log := p.log.With("event_id", ch.EventID, "order_id", o.ID, "customer", o.CustomerEmail)
	if o.CustomerEmail == "" {
		log.Warn("order row has no customer")
		p.record(ctx, resultIgnored)
		return nil
	}

	res, err := p.counts.ApplyOrderCount(ctx, o.CustomerEmail, o.ID, delta, ch.EventID)
	if err != nil {
		p.record(ctx, "failed")
		return err
	}
	switch res {
	case customers.CountDuplicate:
		log.Info("change already applied", "op", ch.Operation)
	case customers.CountNoCustomer:
		log.Warn("customer missing, order count not moved", "op", ch.Operation)
	default:
		log.Debug("order count moved", "delta", delta)
	}
	p.record(ctx, res.String())
	return nil
}

func (p *Projector) record(ctx context.Context, result string) {
	p.metrics.Count(ctx, MetricName, 1, map[string]string{"Result": result})
}
