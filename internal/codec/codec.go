// Package codec maps domain values to and from the attribute maps stored in
// the shared table. Every row carries an EntityType tag; decoding reads the
// tag once and dispatches on the closed Kind set.
//
// Attributes a row does not carry decode to their zero value. Key values that
// are present but do not parse are reported as errors.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// Non-key attribute names.
const (
	AttrEntityType    = "EntityType"
	AttrData          = "Data"
	AttrName          = "Name"
	AttrPrice         = "Price"
	AttrStreetAddress = "StreetAddress"
	AttrCountry       = "Country"
	AttrCity          = "City"
	AttrCustomerEmail = "CustomerEmail"
	AttrDateDelivered = "DateDelivered"
	AttrEventID       = "EventID"
	AttrAppliedAt     = "AppliedAt"
)

// TimeLayout is the fixed width UTC layout of stored timestamps. Fixed width
// keeps lexical order equal to chronological order in sort keys.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Kind is the entity type of a row.
type Kind string

const (
	KindCustomer       Kind = "Customer"
	KindProduct        Kind = "Product"
	KindOrder          Kind = "Order"
	KindCustomerOrder  Kind = "CustomerOrder"
	KindOrderedProduct Kind = "OrderedProduct"
	KindOrderCounted   Kind = "OrderCounted"
)

var (
	ErrUnknownKind = errors.New("codec: unknown entity type")
	ErrWrongKind   = errors.New("codec: unexpected entity type")
	ErrBadValue    = errors.New("codec: bad attribute value")
)

func (k Kind) valid() bool {
	switch k {
	case KindCustomer, KindProduct, KindOrder, KindCustomerOrder, KindOrderedProduct, KindOrderCounted:
		return true
	}
	return false
}

// KindOf reads the EntityType tag of a row.
func KindOf(it table.Item) (Kind, error) {
	k := Kind(String(it, AttrEntityType))
	if !k.valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, k)
	}
	return k, nil
}

func expectKind(it table.Item, want Kind) error {
	k, err := KindOf(it)
	if err != nil {
		return err
	}
	if k != want {
		return fmt.Errorf("%w: got %s, want %s", ErrWrongKind, k, want)
	}
	return nil
}

// Key converts a key pair of the shared table into its attribute map.
func Key(k keys.Key) table.Key {
	return table.Key{
		keys.AttrPK: S(k.PK),
		keys.AttrSK: S(k.SK),
	}
}

func S(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func N(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

func Decimal(d decimal.Decimal) types.AttributeValue { return N(d.String()) }

func Int(v int64) types.AttributeValue { return N(strconv.FormatInt(v, 10)) }

func Time(t time.Time) types.AttributeValue { return S(FormatTime(t)) }

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// String returns a string attribute or "".
func String(it table.Item, name string) string {
	if v, ok := it[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func number(it table.Item, name string) (string, bool) {
	v, ok := it[name].(*types.AttributeValueMemberN)
	if !ok {
		return "", false
	}
	return v.Value, true
}

// DecimalOf returns a numeric attribute as a decimal, zero when absent.
func DecimalOf(it table.Item, name string) (decimal.Decimal, error) {
	raw, ok := number(it, name)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", ErrBadValue, name, raw)
	}
	return d, nil
}

// IntOf returns a numeric attribute as an integer, zero when absent.
func IntOf(it table.Item, name string) (int64, error) {
	d, err := DecimalOf(it, name)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: %s=%s is not an integer", ErrBadValue, name, d)
	}
	return d.IntPart(), nil
}

// TimeOf parses a timestamp attribute, zero when absent.
func TimeOf(it table.Item, name string) (time.Time, error) {
	raw := String(it, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrBadValue, name, raw)
	}
	return t, nil
}

func optionalTime(it table.Item, name string) (*time.Time, error) {
	t, err := TimeOf(it, name)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}
