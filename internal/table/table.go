// Package table is the generic key-value store client the repositories are
// built on. It speaks in attribute maps, conditions and update sets, and has a
// DynamoDB implementation and an in-memory one that emits a change feed.
package table

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a row as a generic attribute map.
type Item = map[string]types.AttributeValue

// Key identifies a row by its primary key attributes.
type Key = map[string]types.AttributeValue

// Client is the store surface used by the repositories.
type Client interface {
	// GetItem returns nil when no row exists at key.
	GetItem(ctx context.Context, tableName string, key Key) (Item, error)
	Query(ctx context.Context, q Query) ([]Item, error)
	// BatchGetItems silently omits keys that do not resolve.
	BatchGetItems(ctx context.Context, tableName string, keys []Key) ([]Item, error)
	PutItem(ctx context.Context, tableName string, item Item, conds ...Condition) error
	// UpdateItem returns the row as it is after the update.
	UpdateItem(ctx context.Context, tableName string, key Key, upd *Update, conds ...Condition) (Item, error)
	// DeleteItem returns the removed row, or nil when nothing was there.
	DeleteItem(ctx context.Context, tableName string, key Key, conds ...Condition) (Item, error)
	TransactWrite(ctx context.Context, items ...TransactItem) error
}

var (
	// ErrConditionFailed reports a single-item conditional write that was rejected.
	ErrConditionFailed = errors.New("table: conditional check failed")
	// ErrTransactionCanceled matches every *CanceledError.
	ErrTransactionCanceled = errors.New("table: transaction canceled")
)

// Cancellation reason codes, as reported per transaction item.
const (
	ReasonNone            = "None"
	ReasonConditionFailed = "ConditionalCheckFailed"
)

// CanceledError is returned by TransactWrite when the store rejected the
// transaction. Reasons holds one code per submitted item, in order.
type CanceledError struct {
	Reasons []string
	cause   error
}

func (e *CanceledError) Error() string {
	msg := "table: transaction canceled"
	if len(e.Reasons) > 0 {
		msg += " [" + strings.Join(e.Reasons, ", ") + "]"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *CanceledError) Is(target error) bool { return target == ErrTransactionCanceled }

func (e *CanceledError) Unwrap() error { return e.cause }

// ConditionFailed reports whether item i failed its condition.
func (e *CanceledError) ConditionFailed(i int) bool {
	return i >= 0 && i < len(e.Reasons) && e.Reasons[i] == ReasonConditionFailed
}

type conditionOp int

const (
	condExists conditionOp = iota + 1
	condNotExists
	condEquals
)

// Condition is a server-side predicate over the current row. Several
// conditions on one write are combined with AND.
type Condition struct {
	op    conditionOp
	attr  string
	value string
}

func AttributeExists(attr string) Condition {
	return Condition{op: condExists, attr: attr}
}

func AttributeNotExists(attr string) Condition {
	return Condition{op: condNotExists, attr: attr}
}

// Equals holds when attr is a string equal to value.
func Equals(attr, value string) Condition {
	return Condition{op: condEquals, attr: attr, value: value}
}

func (c Condition) String() string {
	switch c.op {
	case condExists:
		return fmt.Sprintf("attribute_exists(%s)", c.attr)
	case condNotExists:
		return fmt.Sprintf("attribute_not_exists(%s)", c.attr)
	default:
		return fmt.Sprintf("%s = %q", c.attr, c.value)
	}
}

type assignment struct {
	name  string
	value types.AttributeValue
}

// Update is a partial row update: SET, numeric ADD and REMOVE actions.
type Update struct {
	set    []assignment
	add    []assignment
	remove []string
}

func NewUpdate() *Update { return &Update{} }

func (u *Update) Set(name string, value types.AttributeValue) *Update {
	u.set = append(u.set, assignment{name: name, value: value})
	return u
}

// Add increments a numeric attribute, creating it when absent.
func (u *Update) Add(name string, value types.AttributeValue) *Update {
	u.add = append(u.add, assignment{name: name, value: value})
	return u
}

func (u *Update) Remove(name string) *Update {
	u.remove = append(u.remove, name)
	return u
}

// Empty reports whether the update carries no action.
func (u *Update) Empty() bool {
	return u == nil || len(u.set)+len(u.add)+len(u.remove) == 0
}

// Query selects rows sharing one partition value, optionally narrowed to sort
// values starting with SortPrefix. Index names a secondary index; empty means
// the base table.
type Query struct {
	Table         string
	Index         string
	PartitionAttr string
	Partition     string
	SortAttr      string
	SortPrefix    string
	Descending    bool
}

type opKind int

const (
	opPut opKind = iota + 1
	opUpdate
	opDelete
)

// TransactItem is one write of an atomic TransactWrite.
type TransactItem struct {
	kind       opKind
	table      string
	item       Item
	key        Key
	update     *Update
	conditions []Condition
}

func PutOp(tableName string, item Item, conds ...Condition) TransactItem {
	return TransactItem{kind: opPut, table: tableName, item: item, conditions: conds}
}

func UpdateOp(tableName string, key Key, upd *Update, conds ...Condition) TransactItem {
	return TransactItem{kind: opUpdate, table: tableName, key: key, update: upd, conditions: conds}
}

func DeleteOp(tableName string, key Key, conds ...Condition) TransactItem {
	return TransactItem{kind: opDelete, table: tableName, key: key, conditions: conds}
}

// MaxTransactItems is the store's limit on writes per transaction.
const MaxTransactItems = 100
