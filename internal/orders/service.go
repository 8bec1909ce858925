package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
)

var (
	ErrUnknownProducts = errors.New("orders: unknown products")
	ErrOutOfStock      = errors.New("orders: products out of stock")
)

// Catalog resolves the products of a new order.
type Catalog interface {
	BatchGet(ctx context.Context, ids []string) (map[string]model.Product, error)
}

// Service places orders: it prices line items from the catalog and persists
// the order through the Store.
type Service struct {
	store   *Store
	catalog Catalog
	newID   func() (string, error)
	nowFunc func() time.Time
}

// NewService wires a Service. Order ids are UUIDv7, so they sort by creation time.
func NewService(store *Store, catalog Catalog) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
		nowFunc: time.Now,
	}
}

// Place creates an OPEN order for customerEmail. quantities maps product ids
// to positive quantities. Names and prices are copied from the catalog as they
// are now.
func (s *Service) Place(ctx context.Context, customerEmail string, quantities map[string]int) (*model.OrderDetails, error) {
	if len(quantities) == 0 {
		return nil, ErrNoLineItems
	}
	if len(quantities) > MaxLineItems {
		return nil, ErrTooManyLineItems
	}
	ids := make([]string, 0, len(quantities))
	for id, q := range quantities {
		if q <= 0 {
			return nil, fmt.Errorf("orders: quantity of %s must be positive, got %d", id, q)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	catalog, err := s.catalog.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	var missing, unavailable []string
	for _, id := range ids {
		p, ok := catalog[id]
		switch {
		case !ok:
			missing = append(missing, id)
		case p.OutOfStock:
			unavailable = append(unavailable, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProducts, strings.Join(missing, ", "))
	}
	if len(unavailable) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrOutOfStock, strings.Join(unavailable, ", "))
	}

	orderID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate order id: %w", err)
	}
	lines := make([]model.OrderedProduct, 0, len(ids))
	for _, id := range ids {
		p := catalog[id]
		lines = append(lines, model.OrderedProduct{
			OrderID:   orderID,
			ProductID: id,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  quantities[id],
		})
	}

	order := model.Order{
		ID:            orderID,
		CustomerEmail: customerEmail,
		Status:        model.StatusOpen,
		CreatedAt:     s.nowFunc().UTC().Truncate(time.Millisecond),
		Total:         model.Total(lines),
	}
	if err := s.store.Create(ctx, order, lines); err != nil {
		return nil, err
	}
	return &model.OrderDetails{Order: order, Products: lines}, nil
}
