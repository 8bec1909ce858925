package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// MaxLineItems is the number of line items that still fit in the creation
// transaction next to the order and its customer projection.
const MaxLineItems = table.MaxTransactItems - 2

var (
	// ErrInvalidTransition is returned for a status change the order
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("orders: invalid status transition")
	ErrNoLineItems       = errors.New("orders: order has no line items")
	ErrTooManyLineItems  = fmt.Errorf("orders: more than %d line items", MaxLineItems)
)

// Store encapsulates order operations on the shared table. It owns the
// canonical order row, the line items and the customer projection row.
type Store struct {
	client    table.Client
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client table.Client, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create atomically writes the canonical order, its customer projection and
// its line items. It returns model.ErrAlreadyExists when the order id is taken.
func (s *Store) Create(ctx context.Context, o model.Order, lines []model.OrderedProduct) error {
	switch {
	case len(lines) == 0:
		return ErrNoLineItems
	case len(lines) > MaxLineItems:
		return ErrTooManyLineItems
	case o.Status != model.StatusOpen:
		return fmt.Errorf("%w: new order must be %s, got %s", ErrInvalidTransition, model.StatusOpen, o.Status)
	}

	items := make([]table.TransactItem, 0, len(lines)+2)
	items = append(items,
		table.PutOp(s.tableName, codec.EncodeOrder(o), table.AttributeNotExists(keys.AttrPK)),
		table.PutOp(s.tableName, codec.EncodeCustomerOrder(o.CustomerView()), table.AttributeNotExists(keys.AttrPK)),
	)
	for _, l := range lines {
		l.OrderID = o.ID
		items = append(items, table.PutOp(s.tableName, codec.EncodeOrderedProduct(l), table.AttributeNotExists(keys.AttrPK)))
	}

	err := s.client.TransactWrite(ctx, items...)
	var ce *table.CanceledError
	if errors.As(err, &ce) {
		if ce.ConditionFailed(0) {
			return fmt.Errorf("order %s: %w", o.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("order %s: %w: %v", o.ID, model.ErrConflictCanceled, err)
	}
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// Get fetches the canonical order row.
func (s *Store) Get(ctx context.Context, id string) (*model.Order, error) {
	it, err := s.client.GetItem(ctx, s.tableName, codec.Key(keys.OrderKey(id)))
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	o, err := codec.DecodeOrder(it)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Details reads the order partition, which holds the canonical row and the
// line items, and splits it by row kind. Line items without a canonical row
// are reported as model.ErrNotFound.
func (s *Store) Details(ctx context.Context, id string) (*model.OrderDetails, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		PartitionAttr: keys.AttrPK,
		Partition:     keys.OrderKey(id).PK,
	})
	if err != nil {
		return nil, fmt.Errorf("order details: %w", err)
	}

	var d model.OrderDetails
	found := false
	for _, it := range items {
		row, err := codec.DecodeRow(it)
		if err != nil {
			return nil, err
		}
		switch row.Kind {
		case codec.KindOrder:
			d.Order = *row.Order
			found = true
		case codec.KindOrderedProduct:
			d.Products = append(d.Products, *row.OrderedProduct)
		}
	}
	if !found {
		return nil, fmt.Errorf("order %s: %w", id, model.ErrNotFound)
	}
	return &d, nil
}

// ByCustomer lists a customer's orders from the customer's own partition. The
// rows are the customer projection, kept in step with the canonical rows by
// StatusChange.
func (s *Store) ByCustomer(ctx context.Context, email string) ([]model.CustomerOrder, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		PartitionAttr: keys.AttrPK,
		Partition:     keys.CustomerKey(email).PK,
		SortAttr:      keys.AttrSK,
		SortPrefix:    keys.OrderPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("orders by customer: %w", err)
	}
	out := make([]model.CustomerOrder, 0, len(items))
	for _, it := range items {
		co, err := codec.DecodeCustomerOrder(it)
		if err != nil {
			return nil, err
		}
		out = append(out, co)
	}
	return out, nil
}

// ByStatus lists canonical orders in a status, oldest first. Delivered orders
// are indexed per delivery month, so month selects the partition for them.
func (s *Store) ByStatus(ctx context.Context, status model.Status, month string) ([]model.Order, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI1,
		PartitionAttr: keys.AttrGSI1PK,
		Partition:     keys.OrderStatusIndex(string(status), month),
	})
	if err != nil {
		return nil, fmt.Errorf("orders by status: %w", err)
	}
	out := make([]model.Order, 0, len(items))
	for _, it := range items {
		o, err := codec.DecodeOrder(it)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ByProduct lists the canonical orders containing a product. The index holds
// the line items, so the orders are fetched in a second batched read.
func (s *Store) ByProduct(ctx context.Context, productID string) ([]model.Order, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI1,
		PartitionAttr: keys.AttrGSI1PK,
		Partition:     keys.ProductIndex(productID),
	})
	if err != nil {
		return nil, fmt.Errorf("orders by product: %w", err)
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		line, err := codec.DecodeOrderedProduct(it)
		if err != nil {
			return nil, err
		}
		ids = append(ids, line.OrderID)
	}
	byID, err := s.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Order, 0, len(byID))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// BatchGet fetches canonical orders by id. Ids that do not resolve are left
// out of the result.
func (s *Store) BatchGet(ctx context.Context, ids []string) (map[string]model.Order, error) {
	ks := make([]table.Key, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ks = append(ks, codec.Key(keys.OrderKey(id)))
	}
	if len(ks) == 0 {
		return map[string]model.Order{}, nil
	}
	items, err := s.client.BatchGetItems(ctx, s.tableName, ks)
	if err != nil {
		return nil, fmt.Errorf("batch get orders: %w", err)
	}
	out := make(map[string]model.Order, len(items))
	for _, it := range items {
		o, err := codec.DecodeOrder(it)
		if err != nil {
			return nil, err
		}
		out[o.ID] = o
	}
	return out, nil
}

// StatusChange builds the writes that move order o to status to:
//   - the canonical row's status, conditioned on the stored status still being o's
//   - removal of the customer projection keyed by the old status
//   - a replacement projection keyed by the new status
//
// The writes must be committed in one transaction. The returned order is the
// state after commit.
func (s *Store) StatusChange(o model.Order, to model.Status, at time.Time) ([]table.TransactItem, model.Order, error) {
	if !o.Status.CanTransition(to) {
		return nil, o, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	next := o
	next.Status = to
	upd := table.NewUpdate()
	if to == model.StatusDelivered {
		at = at.UTC().Truncate(time.Millisecond)
		next.DeliveredAt = &at
		upd.Set(codec.AttrDateDelivered, codec.Time(at))
	}
	upd.Set(keys.AttrGSI1PK, codec.S(codec.OrderStatusValue(next)))

	items := []table.TransactItem{
		table.UpdateOp(s.tableName, codec.Key(keys.OrderKey(o.ID)), upd,
			table.Equals(keys.AttrGSI1PK, codec.OrderStatusValue(o))),
		table.DeleteOp(s.tableName, codec.Key(keys.CustomerOrderKey(o.CustomerEmail, string(o.Status), o.ID)),
			table.AttributeExists(keys.AttrPK)),
		table.PutOp(s.tableName, codec.EncodeCustomerOrder(next.CustomerView()),
			table.AttributeNotExists(keys.AttrPK)),
	}
	return items, next, nil
}

// Deliver moves an OPEN order to DELIVERED together with its customer
// projection.
func (s *Store) Deliver(ctx context.Context, id string) (*model.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, next, err := s.StatusChange(*o, model.StatusDelivered, s.nowFunc())
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", id, err)
	}
	err = s.client.TransactWrite(ctx, items...)
	if errors.Is(err, table.ErrTransactionCanceled) {
		return nil, fmt.Errorf("order %s: %w: %v", id, model.ErrConflictCanceled, err)
	}
	if err != nil {
		return nil, fmt.Errorf("deliver order: %w", err)
	}
	return &next, nil
}

// Delete removes the order, its customer projection and its line items in one
// transaction and returns what was removed.
func (s *Store) Delete(ctx context.Context, id string) (*model.OrderDetails, error) {
	d, err := s.Details(ctx, id)
	if err != nil {
		return nil, err
	}
	o := d.Order
	items := make([]table.TransactItem, 0, len(d.Products)+2)
	items = append(items,
		table.DeleteOp(s.tableName, codec.Key(keys.OrderKey(o.ID)),
			table.Equals(keys.AttrGSI1PK, codec.OrderStatusValue(o))),
		table.DeleteOp(s.tableName, codec.Key(keys.CustomerOrderKey(o.CustomerEmail, string(o.Status), o.ID))),
	)
	for _, l := range d.Products {
		items = append(items, table.DeleteOp(s.tableName, codec.Key(keys.OrderLineKey(o.ID, l.ProductID))))
	}

	err = s.client.TransactWrite(ctx, items...)
	if errors.Is(err, table.ErrTransactionCanceled) {
		return nil, fmt.Errorf("order %s: %w: %v", id, model.ErrConflictCanceled, err)
	}
	if err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}
	return d, nil
}
