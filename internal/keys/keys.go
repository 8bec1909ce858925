// Package keys builds and parses the partition, sort and index key strings of
// the shared marketplace table.
package keys

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Separator joins the segments of a composite key value.
const Separator = "#"

// Key prefixes. Every prefix already ends with Separator.
const (
	CustomerPrefix        = "CUST#"
	CustomerAddressPrefix = "CUST_ADDR#"
	OrderPrefix           = "ORDER#"
	ProductPrefix         = "PROD#"
	CategoryPrefix        = "CAT#"
	PaymentPrefix         = "PAYMENT#"
	CountedPrefix         = "COUNTED#"
)

// OutOfStock is the partition value of the sparse out-of-stock index.
const OutOfStock = "OUT_OF_STOCK"

// MonthLayout formats the month suffix of delivered order index keys (yyyy_MM).
const MonthLayout = "2006_01"

// Attribute and index names of the shared table.
const (
	AttrPK     = "pk"
	AttrSK     = "sk"
	AttrGSI1PK = "gsi1pk"
	AttrGSI1SK = "gsi1sk"
	AttrGSI2PK = "GSI2PK"
	AttrGSI2SK = "GSI2SK"

	IndexGSI1 = "gsi1"
	IndexGSI2 = "GSI2"
)

// Attribute names of the auxiliary payments table.
const (
	AttrPaymentPK = "PK"
	AttrPaymentSK = "SK"
)

// ErrMalformedKey is returned when a key value does not carry the expected
// prefix or number of segments.
var ErrMalformedKey = errors.New("keys: malformed key")

// Key is a primary key pair.
type Key struct {
	PK string
	SK string
}

// Primary returns the self-describing key of a top level row: pk and sk both
// hold prefix+id.
func Primary(prefix, id string) Key {
	v := prefix + id
	return Key{PK: v, SK: v}
}

// Child colocates a row under its parent's partition.
func Child(parent Key, childPrefix, childID string) Key {
	return Key{PK: parent.PK, SK: childPrefix + childID}
}

// Join builds a composite value from its segments.
func Join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// Index builds an alternate partition value: prefix followed by the joined
// discriminator segments.
func Index(prefix string, parts ...string) string {
	return prefix + Join(parts...)
}

// Split strips prefix from value and splits the remainder into exactly n
// segments. The last segment keeps any further separators.
func Split(value, prefix string, n int) ([]string, error) {
	rest, ok := strings.CutPrefix(value, prefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q lacks prefix %q", ErrMalformedKey, value, prefix)
	}
	parts := strings.SplitN(rest, Separator, n)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %q has %d segments, want %d", ErrMalformedKey, value, len(parts), n)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrMalformedKey, value)
		}
	}
	return parts, nil
}

// TrimPrefix returns the id part of a single segment key value.
func TrimPrefix(value, prefix string) (string, error) {
	parts, err := Split(value, prefix, 1)
	if err != nil {
		return "", err
	}
	return parts[0], nil
}

func CustomerKey(email string) Key { return Primary(CustomerPrefix, email) }
func ProductKey(id string) Key     { return Primary(ProductPrefix, id) }
func OrderKey(id string) Key       { return Primary(OrderPrefix, id) }

// OrderLineKey is the key of a line item, stored in its order's partition.
func OrderLineKey(orderID, productID string) Key {
	return Child(OrderKey(orderID), ProductPrefix, productID)
}

// CustomerOrderKey is the key of the customer's projection of an order. The
// status is part of the sort key so a status change moves the row.
func CustomerOrderKey(email, status, orderID string) Key {
	return Child(CustomerKey(email), OrderPrefix, Join(status, orderID))
}

// ParseCustomerOrderSK splits ORDER#<status>#<orderId>.
func ParseCustomerOrderSK(sk string) (status, orderID string, err error) {
	parts, err := Split(sk, OrderPrefix, 2)
	if err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

// CountedKey marks an order as already counted for its customer.
func CountedKey(email, orderID string) Key {
	return Child(CustomerKey(email), CountedPrefix, orderID)
}

// OrderStatusIndex returns ORDER#<status>, or ORDER#<status>#<month> when a
// month is given.
func OrderStatusIndex(status, month string) string {
	if month == "" {
		return Index(OrderPrefix, status)
	}
	return Index(OrderPrefix, status, month)
}

// ParseOrderStatusIndex reverses OrderStatusIndex. month is empty when the
// value carries no suffix.
func ParseOrderStatusIndex(value string) (status, month string, err error) {
	rest, ok := strings.CutPrefix(value, OrderPrefix)
	if !ok || rest == "" {
		return "", "", fmt.Errorf("%w: %q is not an order status value", ErrMalformedKey, value)
	}
	parts := strings.Split(rest, Separator)
	switch {
	case len(parts) == 1:
		return parts[0], "", nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%w: %q is not an order status value", ErrMalformedKey, value)
	}
}

// OrderIndex is the index-1 partition shared by an order's customer projection.
func OrderIndex(orderID string) string { return Index(OrderPrefix, orderID) }

// ProductIndex is the index-1 partition grouping line items by product.
func ProductIndex(productID string) string { return Index(ProductPrefix, productID) }

func CategoryIndex(category string) string { return Index(CategoryPrefix, category) }

func AddressIndex(country, city string) string {
	return Index(CustomerAddressPrefix, country, city)
}

// ParseAddressIndex splits CUST_ADDR#<country>#<city>.
func ParseAddressIndex(value string) (country, city string, err error) {
	parts, err := Split(value, CustomerAddressPrefix, 2)
	if err != nil {
		return "", "", err
	}
	return parts[0], parts[1], nil
}

func CustomerNameSort(name string) string { return CustomerPrefix + name }

func PaymentPartition(customerID string) string { return PaymentPrefix + customerID }

// Month formats t as the yyyy_MM suffix used by delivered order index keys.
func Month(t time.Time) string { return t.UTC().Format(MonthLayout) }

// ValidMonth reports whether s is a yyyy_MM month.
func ValidMonth(s string) bool {
	_, err := time.Parse(MonthLayout, s)
	return err == nil
}
