// Package customers stores customer rows in the shared table.
package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/idempotency"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// Store encapsulates customer operations on the shared table.
type Store struct {
	client    table.Client
	tableName string
	ledger    *idempotency.Store
}

// NewStore creates a new customers Store.
func NewStore(client table.Client, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ledger:    idempotency.NewStore(client, tableName),
	}
}

// Changes lists the fields of a partial update. Nil fields are left as they are.
type Changes struct {
	Name    *string
	Address *model.Address
}

// Create inserts a new customer with a zero order count. It returns
// model.ErrAlreadyExists when the email is taken.
func (s *Store) Create(ctx context.Context, c model.Customer) error {
	c.OrderCount = 0
	err := s.client.PutItem(ctx, s.tableName, codec.EncodeCustomer(c), table.AttributeNotExists(keys.AttrPK))
	if errors.Is(err, table.ErrConditionFailed) {
		return fmt.Errorf("customer %s: %w", c.Email, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// Get fetches a customer by email.
func (s *Store) Get(ctx context.Context, email string) (*model.Customer, error) {
	it, err := s.client.GetItem(ctx, s.tableName, codec.Key(keys.CustomerKey(email)))
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("customer %s: %w", email, model.ErrNotFound)
	}
	c, err := codec.DecodeCustomer(it)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Update applies the supplied fields and returns the updated customer.
func (s *Store) Update(ctx context.Context, email string, ch Changes) (*model.Customer, error) {
	upd := table.NewUpdate()
	if ch.Name != nil {
		upd.Set(codec.AttrName, codec.S(*ch.Name)).
			Set(keys.AttrGSI1SK, codec.S(keys.CustomerNameSort(*ch.Name)))
	}
	if a := ch.Address; a != nil {
		upd.Set(codec.AttrStreetAddress, codec.S(a.StreetAddress))
		setOrRemove(upd, codec.AttrCountry, a.Country)
		setOrRemove(upd, codec.AttrCity, a.City)
		if v, ok := codec.AddressIndexValue(*a); ok {
			upd.Set(keys.AttrGSI1PK, codec.S(v))
		} else {
			upd.Remove(keys.AttrGSI1PK)
		}
	}
	if upd.Empty() {
		return s.Get(ctx, email)
	}

	it, err := s.client.UpdateItem(ctx, s.tableName, codec.Key(keys.CustomerKey(email)), upd, table.AttributeExists(keys.AttrPK))
	if errors.Is(err, table.ErrConditionFailed) {
		return nil, fmt.Errorf("customer %s: %w", email, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	c, err := codec.DecodeCustomer(it)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func setOrRemove(upd *table.Update, attr, v string) {
	if v == "" {
		upd.Remove(attr)
		return
	}
	upd.Set(attr, codec.S(v))
}

// Delete removes a customer row and its order count ledger, and returns the
// last value of the row. The customer's order projections are left in place.
func (s *Store) Delete(ctx context.Context, email string) (*model.Customer, error) {
	old, err := s.client.DeleteItem(ctx, s.tableName, codec.Key(keys.CustomerKey(email)))
	if err != nil {
		return nil, fmt.Errorf("delete customer: %w", err)
	}
	if old == nil {
		return nil, fmt.Errorf("customer %s: %w", email, model.ErrNotFound)
	}
	if _, err := s.ledger.Sweep(ctx, email); err != nil {
		return nil, fmt.Errorf("delete customer %s: %w", email, err)
	}
	c, err := codec.DecodeCustomer(old)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ByLocation lists the customers living in a city, ordered by name.
func (s *Store) ByLocation(ctx context.Context, country, city string) ([]model.Customer, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI1,
		PartitionAttr: keys.AttrGSI1PK,
		Partition:     keys.AddressIndex(country, city),
	})
	if err != nil {
		return nil, fmt.Errorf("customers by location: %w", err)
	}
	out := make([]model.Customer, 0, len(items))
	for _, it := range items {
		c, err := codec.DecodeCustomer(it)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ByOrderID resolves the customer owning an order through the order's
// customer projection row.
func (s *Store) ByOrderID(ctx context.Context, orderID string) (*model.Customer, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI1,
		PartitionAttr: keys.AttrGSI1PK,
		Partition:     keys.OrderIndex(orderID),
	})
	if err != nil {
		return nil, fmt.Errorf("customer by order: %w", err)
	}
	for _, it := range items {
		k, err := codec.KindOf(it)
		if err != nil || k != codec.KindCustomerOrder {
			continue
		}
		co, err := codec.DecodeCustomerOrder(it)
		if err != nil {
			return nil, err
		}
		return s.Get(ctx, co.CustomerEmail)
	}
	return nil, fmt.Errorf("customer of order %s: %w", orderID, model.ErrNotFound)
}

// BatchGet fetches customers by email. Emails that do not resolve are left
// out of the result.
func (s *Store) BatchGet(ctx context.Context, emails []string) (map[string]model.Customer, error) {
	ks := make([]table.Key, 0, len(emails))
	seen := map[string]bool{}
	for _, e := range emails {
		if seen[e] {
			continue
		}
		seen[e] = true
		ks = append(ks, codec.Key(keys.CustomerKey(e)))
	}
	if len(ks) == 0 {
		return map[string]model.Customer{}, nil
	}
	items, err := s.client.BatchGetItems(ctx, s.tableName, ks)
	if err != nil {
		return nil, fmt.Errorf("batch get customers: %w", err)
	}
	out := make(map[string]model.Customer, len(items))
	for _, it := range items {
		c, err := codec.DecodeCustomer(it)
		if err != nil {
			return nil, err
		}
		out[c.Email] = c
	}
	return out, nil
}

// CountUpdate is the transaction item that moves a customer's order count by
// delta. It requires the customer row to exist so a counter never creates an
// orphan row.
func (s *Store) CountUpdate(email string, delta int64) table.TransactItem {
	return table.UpdateOp(s.tableName,
		codec.Key(keys.CustomerKey(email)),
		table.NewUpdate().Add(codec.AttrData, codec.Int(delta)),
		table.AttributeExists(keys.AttrPK),
	)
}

// CountResult tells what ApplyOrderCount did.
type CountResult int

const (
	CountApplied CountResult = iota
	// CountDuplicate means the order was already in the requested state.
	CountDuplicate
	// CountNoCustomer means the customer row does not exist.
	CountNoCustomer
)

func (r CountResult) String() string {
	switch r {
	case CountApplied:
		return "applied"
	case CountDuplicate:
		return "duplicate"
	case CountNoCustomer:
		return "no_customer"
	}
	return "unknown"
}

// ApplyOrderCount counts (delta 1) or uncounts (delta -1) orderID for the
// customer. The ledger mark and the counter move in one transaction, so
// replaying the same change is a no-op.
func (s *Store) ApplyOrderCount(ctx context.Context, email, orderID string, delta int64, eventID string) (CountResult, error) {
	var mark table.TransactItem
	switch delta {
	case 1:
		claim, err := s.ledger.Claim(email, orderID, eventID)
		if err != nil {
			return 0, err
		}
		mark = claim
	case -1:
		mark = s.ledger.Release(email, orderID)
	default:
		return 0, fmt.Errorf("apply order count: delta %d out of range", delta)
	}

	err := s.client.TransactWrite(ctx, mark, s.CountUpdate(email, delta))
	var ce *table.CanceledError
	if errors.As(err, &ce) {
		switch {
		case ce.ConditionFailed(1):
			return CountNoCustomer, nil
		case ce.ConditionFailed(0):
			return CountDuplicate, nil
		}
	}
	if err != nil {
		return 0, fmt.Errorf("apply order count %s/%s: %w", email, orderID, err)
	}
	return CountApplied, nil
}
