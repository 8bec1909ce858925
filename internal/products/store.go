// Package products stores the catalog in the shared table.
package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// Store encapsulates product operations on the shared table.
type Store struct {
	client    table.Client
	tableName string
}

func NewStore(client table.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Changes lists the fields of a partial update. Nil fields are left as they are.
type Changes struct {
	Name       *string
	Price      *decimal.Decimal
	Category   *string
	OutOfStock *bool
}

// Create inserts a product, failing with model.ErrAlreadyExists on a taken id.
func (s *Store) Create(ctx context.Context, p model.Product) error {
	err := s.client.PutItem(ctx, s.tableName, codec.EncodeProduct(p), table.AttributeNotExists(keys.AttrPK))
	if errors.Is(err, table.ErrConditionFailed) {
		return fmt.Errorf("product %s: %w", p.ID, model.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Product, error) {
	it, err := s.client.GetItem(ctx, s.tableName, codec.Key(keys.ProductKey(id)))
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if it == nil {
		return nil, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	p, err := codec.DecodeProduct(it)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies the supplied fields and returns the updated product.
// Marking a product out of stock adds it to the sparse index; clearing the
// flag removes it.
func (s *Store) Update(ctx context.Context, id string, ch Changes) (*model.Product, error) {
	upd := table.NewUpdate()
	if ch.Name != nil {
		upd.Set(codec.AttrName, codec.S(*ch.Name)).
			Set(keys.AttrGSI1SK, codec.S(*ch.Name)).
			Set(keys.AttrGSI2SK, codec.S(*ch.Name))
	}
	if ch.Price != nil {
		upd.Set(codec.AttrData, codec.Decimal(*ch.Price))
	}
	if ch.Category != nil {
		if *ch.Category != "" {
			upd.Set(keys.AttrGSI1PK, codec.S(keys.CategoryIndex(*ch.Category)))
		} else {
			upd.Remove(keys.AttrGSI1PK)
		}
	}
	if ch.OutOfStock != nil {
		if *ch.OutOfStock {
			upd.Set(keys.AttrGSI2PK, codec.S(keys.OutOfStock))
		} else {
			upd.Remove(keys.AttrGSI2PK)
		}
	}
	if upd.Empty() {
		return s.Get(ctx, id)
	}

	it, err := s.client.UpdateItem(ctx, s.tableName, codec.Key(keys.ProductKey(id)), upd, table.AttributeExists(keys.AttrPK))
	if errors.Is(err, table.ErrConditionFailed) {
		return nil, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	p, err := codec.DecodeProduct(it)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a product and returns its last value. Line items already
// snapshotted into orders are unaffected.
func (s *Store) Delete(ctx context.Context, id string) (*model.Product, error) {
	old, err := s.client.DeleteItem(ctx, s.tableName, codec.Key(keys.ProductKey(id)))
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	if old == nil {
		return nil, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	p, err := codec.DecodeProduct(old)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ByCategory lists a category's products ordered by name.
func (s *Store) ByCategory(ctx context.Context, category string) ([]model.Product, error) {
	return s.query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI1,
		PartitionAttr: keys.AttrGSI1PK,
		Partition:     keys.CategoryIndex(category),
	})
}

// OutOfStock lists the products carrying the out-of-stock marker.
func (s *Store) OutOfStock(ctx context.Context) ([]model.Product, error) {
	return s.query(ctx, table.Query{
		Table:         s.tableName,
		Index:         keys.IndexGSI2,
		PartitionAttr: keys.AttrGSI2PK,
		Partition:     keys.OutOfStock,
	})
}

func (s *Store) query(ctx context.Context, q table.Query) ([]model.Product, error) {
	items, err := s.client.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query products %s: %w", q.Partition, err)
	}
	out := make([]model.Product, 0, len(items))
	for _, it := range items {
		p, err := codec.DecodeProduct(it)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// BatchGet fetches products by id in one round trip per hundred ids. Ids that
// do not resolve are left out of the result.
func (s *Store) BatchGet(ctx context.Context, ids []string) (map[string]model.Product, error) {
	ks := make([]table.Key, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		ks = append(ks, codec.Key(keys.ProductKey(id)))
	}
	if len(ks) == 0 {
		return map[string]model.Product{}, nil
	}
	items, err := s.client.BatchGetItems(ctx, s.tableName, ks)
	if err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}
	out := make(map[string]model.Product, len(items))
	for _, it := range items {
		p, err := codec.DecodeProduct(it)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}
