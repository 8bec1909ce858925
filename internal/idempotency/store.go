// Package idempotency keeps the ledger that makes order counting safe under
// change feed redelivery. A marker row exists exactly while an order is
// counted; claiming or releasing it is committed together with the counter
// update, so a replayed event finds the ledger already in its target state
// and the whole transaction is refused.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// Store builds ledger writes against the shared table.
type Store struct {
	client    table.Client
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a ledger Store on the shared table.
func NewStore(client table.Client, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Claim is the transaction item recording that orderID has been counted for
// email. It fails its condition when the order is already counted.
func (s *Store) Claim(email, orderID, eventID string) (table.TransactItem, error) {
	k := keys.CountedKey(email, orderID)
	item, err := attributevalue.MarshalMap(Record{
		PK:         k.PK,
		SK:         k.SK,
		EntityType: string(codec.KindOrderCounted),
		EventID:    eventID,
		AppliedAt:  s.nowFunc().UTC(),
	})
	if err != nil {
		return table.TransactItem{}, fmt.Errorf("marshal ledger record: %w", err)
	}
	return table.PutOp(s.tableName, item, table.AttributeNotExists(keys.AttrPK)), nil
}

// Release is the transaction item removing the mark. It fails its condition
// when the order is not counted.
func (s *Store) Release(email, orderID string) table.TransactItem {
	return table.DeleteOp(s.tableName, codec.Key(keys.CountedKey(email, orderID)), table.AttributeExists(keys.AttrPK))
}

// Sweep deletes every mark in the customer's partition and returns how many
// were removed. A customer created again under the same email starts from an
// empty ledger, so releasing an order counted for the old row is a no-op.
func (s *Store) Sweep(ctx context.Context, email string) (int, error) {
	items, err := s.client.Query(ctx, table.Query{
		Table:         s.tableName,
		PartitionAttr: keys.AttrPK,
		Partition:     keys.CustomerKey(email).PK,
		SortAttr:      keys.AttrSK,
		SortPrefix:    keys.CountedPrefix,
	})
	if err != nil {
		return 0, fmt.Errorf("list ledger records: %w", err)
	}
	for i, it := range items {
		key := table.Key{keys.AttrPK: it[keys.AttrPK], keys.AttrSK: it[keys.AttrSK]}
		if _, err := s.client.DeleteItem(ctx, s.tableName, key); err != nil {
			return i, fmt.Errorf("delete ledger record: %w", err)
		}
	}
	return len(items), nil
}

// Get returns the ledger record of an order. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, email, orderID string) (*Record, error) {
	it, err := s.client.GetItem(ctx, s.tableName, codec.Key(keys.CountedKey(email, orderID)))
	if err != nil {
		return nil, fmt.Errorf("get ledger record: %w", err)
	}
	if it == nil {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(it, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ledger record: %w", err)
	}
	return &rec, nil
}
