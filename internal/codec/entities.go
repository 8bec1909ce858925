package codec

import (
	"fmt"

	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

func EncodeCustomer(c model.Customer) table.Item {
	k := keys.CustomerKey(c.Email)
	it := table.Item{
		keys.AttrPK:       S(k.PK),
		keys.AttrSK:       S(k.SK),
		keys.AttrGSI1SK:   S(keys.CustomerNameSort(c.Name)),
		AttrEntityType:    S(string(KindCustomer)),
		AttrName:          S(c.Name),
		AttrStreetAddress: S(c.Address.StreetAddress),
		AttrData:          Int(c.OrderCount),
	}
	if c.Address.Country != "" {
		it[AttrCountry] = S(c.Address.Country)
	}
	if c.Address.City != "" {
		it[AttrCity] = S(c.Address.City)
	}
	if v, ok := AddressIndexValue(c.Address); ok {
		it[keys.AttrGSI1PK] = S(v)
	}
	return it
}

// AddressIndexValue is the index-1 partition of a customer row. Only a
// customer with both country and city is listed by location.
func AddressIndexValue(a model.Address) (string, bool) {
	if a.Country == "" || a.City == "" {
		return "", false
	}
	return keys.AddressIndex(a.Country, a.City), true
}

func DecodeCustomer(it table.Item) (model.Customer, error) {
	if err := expectKind(it, KindCustomer); err != nil {
		return model.Customer{}, err
	}
	email, err := keys.TrimPrefix(String(it, keys.AttrPK), keys.CustomerPrefix)
	if err != nil {
		return model.Customer{}, err
	}
	c := model.Customer{
		Email: email,
		Name:  String(it, AttrName),
		Address: model.Address{
			Country:       String(it, AttrCountry),
			City:          String(it, AttrCity),
			StreetAddress: String(it, AttrStreetAddress),
		},
	}
	if c.OrderCount, err = IntOf(it, AttrData); err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

func EncodeProduct(p model.Product) table.Item {
	k := keys.ProductKey(p.ID)
	it := table.Item{
		keys.AttrPK:     S(k.PK),
		keys.AttrSK:     S(k.SK),
		keys.AttrGSI1SK: S(p.Name),
		// Without GSI2PK the row stays out of the sparse index.
		keys.AttrGSI2SK: S(p.Name),
		AttrEntityType:  S(string(KindProduct)),
		AttrName:        S(p.Name),
		AttrData:        Decimal(p.Price),
	}
	if p.Category != "" {
		it[keys.AttrGSI1PK] = S(keys.CategoryIndex(p.Category))
	}
	if p.OutOfStock {
		it[keys.AttrGSI2PK] = S(keys.OutOfStock)
	}
	return it
}

func DecodeProduct(it table.Item) (model.Product, error) {
	if err := expectKind(it, KindProduct); err != nil {
		return model.Product{}, err
	}
	id, err := keys.TrimPrefix(String(it, keys.AttrPK), keys.ProductPrefix)
	if err != nil {
		return model.Product{}, err
	}
	p := model.Product{
		ID:         id,
		Name:       String(it, AttrName),
		OutOfStock: String(it, keys.AttrGSI2PK) == keys.OutOfStock,
	}
	if v := String(it, keys.AttrGSI1PK); v != "" {
		if p.Category, err = keys.TrimPrefix(v, keys.CategoryPrefix); err != nil {
			return model.Product{}, err
		}
	}
	if p.Price, err = DecimalOf(it, AttrData); err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// OrderStatusValue is the index-1 partition of a canonical order row. Only
// delivered orders carry the month suffix.
func OrderStatusValue(o model.Order) string {
	if o.Status == model.StatusDelivered && o.DeliveredAt != nil {
		return keys.OrderStatusIndex(string(o.Status), keys.Month(*o.DeliveredAt))
	}
	return keys.OrderStatusIndex(string(o.Status), "")
}

func EncodeOrder(o model.Order) table.Item {
	k := keys.OrderKey(o.ID)
	it := table.Item{
		keys.AttrPK:       S(k.PK),
		keys.AttrSK:       S(k.SK),
		keys.AttrGSI1PK:   S(OrderStatusValue(o)),
		keys.AttrGSI1SK:   Time(o.CreatedAt),
		AttrEntityType:    S(string(KindOrder)),
		AttrCustomerEmail: S(o.CustomerEmail),
		AttrData:          Decimal(o.Total),
	}
	if o.DeliveredAt != nil {
		it[AttrDateDelivered] = Time(*o.DeliveredAt)
	}
	return it
}

func DecodeOrder(it table.Item) (model.Order, error) {
	if err := expectKind(it, KindOrder); err != nil {
		return model.Order{}, err
	}
	id, err := keys.TrimPrefix(String(it, keys.AttrPK), keys.OrderPrefix)
	if err != nil {
		return model.Order{}, err
	}
	o := model.Order{
		ID:            id,
		CustomerEmail: String(it, AttrCustomerEmail),
	}
	if v := String(it, keys.AttrGSI1PK); v != "" {
		status, _, err := keys.ParseOrderStatusIndex(v)
		if err != nil {
			return model.Order{}, err
		}
		o.Status = model.Status(status)
		if !o.Status.Valid() {
			return model.Order{}, fmt.Errorf("%w: status %q", ErrBadValue, status)
		}
	}
	if o.CreatedAt, err = TimeOf(it, keys.AttrGSI1SK); err != nil {
		return model.Order{}, err
	}
	if o.DeliveredAt, err = optionalTime(it, AttrDateDelivered); err != nil {
		return model.Order{}, err
	}
	if o.Total, err = DecimalOf(it, AttrData); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func EncodeCustomerOrder(co model.CustomerOrder) table.Item {
	k := keys.CustomerOrderKey(co.CustomerEmail, string(co.Status), co.OrderID)
	it := table.Item{
		keys.AttrPK:     S(k.PK),
		keys.AttrSK:     S(k.SK),
		keys.AttrGSI1PK: S(keys.OrderIndex(co.OrderID)),
		keys.AttrGSI1SK: Time(co.CreatedAt),
		AttrEntityType:  S(string(KindCustomerOrder)),
		AttrData:        Decimal(co.Total),
	}
	if co.DeliveredAt != nil {
		it[AttrDateDelivered] = Time(*co.DeliveredAt)
	}
	return it
}

func DecodeCustomerOrder(it table.Item) (model.CustomerOrder, error) {
	if err := expectKind(it, KindCustomerOrder); err != nil {
		return model.CustomerOrder{}, err
	}
	email, err := keys.TrimPrefix(String(it, keys.AttrPK), keys.CustomerPrefix)
	if err != nil {
		return model.CustomerOrder{}, err
	}
	status, orderID, err := keys.ParseCustomerOrderSK(String(it, keys.AttrSK))
	if err != nil {
		return model.CustomerOrder{}, err
	}
	co := model.CustomerOrder{
		CustomerEmail: email,
		OrderID:       orderID,
		Status:        model.Status(status),
	}
	if !co.Status.Valid() {
		return model.CustomerOrder{}, fmt.Errorf("%w: status %q", ErrBadValue, status)
	}
	if co.CreatedAt, err = TimeOf(it, keys.AttrGSI1SK); err != nil {
		return model.CustomerOrder{}, err
	}
	if co.DeliveredAt, err = optionalTime(it, AttrDateDelivered); err != nil {
		return model.CustomerOrder{}, err
	}
	if co.Total, err = DecimalOf(it, AttrData); err != nil {
		return model.CustomerOrder{}, err
	}
	return co, nil
}

func EncodeOrderedProduct(p model.OrderedProduct) table.Item {
	k := keys.OrderLineKey(p.OrderID, p.ProductID)
	return table.Item{
		keys.AttrPK:     S(k.PK),
		keys.AttrSK:     S(k.SK),
		keys.AttrGSI1PK: S(keys.ProductIndex(p.ProductID)),
		keys.AttrGSI1SK: S(keys.OrderIndex(p.OrderID)),
		AttrEntityType:  S(string(KindOrderedProduct)),
		AttrName:        S(p.Name),
		AttrPrice:       Decimal(p.Price),
		AttrData:        Int(int64(p.Quantity)),
	}
}

func DecodeOrderedProduct(it table.Item) (model.OrderedProduct, error) {
	if err := expectKind(it, KindOrderedProduct); err != nil {
		return model.OrderedProduct{}, err
	}
	orderID, err := keys.TrimPrefix(String(it, keys.AttrPK), keys.OrderPrefix)
	if err != nil {
		return model.OrderedProduct{}, err
	}
	productID, err := keys.TrimPrefix(String(it, keys.AttrSK), keys.ProductPrefix)
	if err != nil {
		return model.OrderedProduct{}, err
	}
	p := model.OrderedProduct{
		OrderID:   orderID,
		ProductID: productID,
		Name:      String(it, AttrName),
	}
	if p.Price, err = DecimalOf(it, AttrPrice); err != nil {
		return model.OrderedProduct{}, err
	}
	qty, err := IntOf(it, AttrData)
	if err != nil {
		return model.OrderedProduct{}, err
	}
	p.Quantity = int(qty)
	return p, nil
}

// Row is a decoded row of any kind. Exactly the field matching Kind is set.
type Row struct {
	Kind           Kind
	Customer       *model.Customer
	Product        *model.Product
	Order          *model.Order
	CustomerOrder  *model.CustomerOrder
	OrderedProduct *model.OrderedProduct
}

// DecodeRow reads the kind tag and decodes the row accordingly. Ledger rows
// decode to a Row carrying only their kind.
func DecodeRow(it table.Item) (Row, error) {
	kind, err := KindOf(it)
	if err != nil {
		return Row{}, err
	}
	r := Row{Kind: kind}
	switch kind {
	case KindCustomer:
		v, err := DecodeCustomer(it)
		if err != nil {
			return Row{}, err
		}
		r.Customer = &v
	case KindProduct:
		v, err := DecodeProduct(it)
		if err != nil {
			return Row{}, err
		}
		r.Product = &v
	case KindOrder:
		v, err := DecodeOrder(it)
		if err != nil {
			return Row{}, err
		}
		r.Order = &v
	case KindCustomerOrder:
		v, err := DecodeCustomerOrder(it)
		if err != nil {
			return Row{}, err
		}
		r.CustomerOrder = &v
	case KindOrderedProduct:
		v, err := DecodeOrderedProduct(it)
		if err != nil {
			return Row{}, err
		}
		r.OrderedProduct = &v
	}
	return r, nil
}
