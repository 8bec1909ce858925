// Package payments records payments in the auxiliary table and runs the
// order payment transaction.
package payments

import (
	"context"
	"fmt"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// Store reads and appends payment rows. Payments are never updated or deleted.
type Store struct {
	client    table.Client
	tableName string
}

func NewStore(client table.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Put is the transaction item appending p. It refuses to overwrite an existing
// payment with the same timestamp.
func (s *Store) Put(p model.Payment) (table.TransactItem, error) {
	item, err := codec.EncodePayment(p)
	if err != nil {
		return table.TransactItem{}, err
	}
	return table.PutOp(s.tableName, item, table.AttributeNotExists(keys.AttrPaymentPK)), nil
}

// ByCustomer lists a customer's payments, newest first.
func (s *Store) ByCustomer(ctx context.Context, customerID string) ([]model.Payment, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		PartitionAttr: keys.AttrPaymentPK,
		Partition:     keys.PaymentPartition(customerID),
		Descending:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("payments by customer: %w", err)
	}
	out := make([]model.Payment, 0, len(items))
	for _, it := range items {
		p, err := codec.DecodePayment(it)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
