package table

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type rowID struct {
	pk string
	sk string
}

// Memory is an in-process Client. Writes are serialized by one mutex, which
// gives transactions the same all-or-nothing visibility the real store has.
// Subscribers receive the change feed synchronously after each commit, in
// commit order.
type Memory struct {
	mu          sync.Mutex
	schemas     map[string]Schema
	rows        map[string]map[rowID]Item
	seq         int64
	writes      int
	subscribers []func(Change)
	pending     []Change
	draining    bool
}

// NewMemory returns an empty store holding the given tables.
func NewMemory(schemas ...Schema) *Memory {
	m := &Memory{
		schemas: map[string]Schema{},
		rows:    map[string]map[rowID]Item{},
	}
	for _, s := range schemas {
		m.schemas[s.Name] = s
		m.rows[s.Name] = map[rowID]Item{}
	}
	return m
}

// Subscribe registers fn to receive every change of streamed tables.
func (m *Memory) Subscribe(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Writes returns the number of row mutations committed so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Rows returns a snapshot of every row of a table.
func (m *Memory) Rows(tableName string) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.rows[tableName]))
	for _, it := range m.rows[tableName] {
		out = append(out, copyItem(it))
	}
	return out
}

func (m *Memory) GetItem(ctx context.Context, tableName string, key Key) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.rowID(tableName, key)
	if err != nil {
		return nil, err
	}
	it, ok := m.rows[tableName][id]
	if !ok {
		return nil, nil
	}
	return copyItem(it), nil
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, ok := m.schemas[q.Table]
	if !ok {
		return nil, fmt.Errorf("memory: unknown table %q", q.Table)
	}
	pkAttr, skAttr := schema.PartitionKey, schema.SortKey
	if q.Index != "" {
		idx, ok := schema.Indexes[q.Index]
		if !ok {
			return nil, fmt.Errorf("memory: unknown index %q on %q", q.Index, q.Table)
		}
		pkAttr, skAttr = idx.PartitionKey, idx.SortKey
	}
	if q.PartitionAttr != "" && q.PartitionAttr != pkAttr {
		return nil, fmt.Errorf("memory: %q is not the partition key of %q", q.PartitionAttr, q.Table)
	}

	var out []Item
	for _, it := range m.rows[q.Table] {
		pv, ok := stringAttr(it, pkAttr)
		if !ok || pv != q.Partition {
			continue
		}
		sv, ok := stringAttr(it, skAttr)
		if !ok {
			continue
		}
		if q.SortPrefix != "" && !strings.HasPrefix(sv, q.SortPrefix) {
			continue
		}
		out = append(out, copyItem(it))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := stringAttr(out[i], skAttr)
		b, _ := stringAttr(out[j], skAttr)
		if a == b {
			ai, _ := stringAttr(out[i], schema.SortKey)
			bi, _ := stringAttr(out[j], schema.SortKey)
			a, b = ai, bi
		}
		if q.Descending {
			return a > b
		}
		return a < b
	})
	return out, nil
}

func (m *Memory) BatchGetItems(ctx context.Context, tableName string, keys []Key) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Item
	seen := map[rowID]bool{}
	for _, k := range keys {
		id, err := m.rowID(tableName, k)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("memory: duplicate key %v in batch get", id)
		}
		seen[id] = true
		if it, ok := m.rows[tableName][id]; ok {
			out = append(out, copyItem(it))
		}
	}
	return out, nil
}

func (m *Memory) PutItem(ctx context.Context, tableName string, item Item, conds ...Condition) error {
	_, err := m.single(PutOp(tableName, item, conds...))
	return err
}

func (m *Memory) UpdateItem(ctx context.Context, tableName string, key Key, upd *Update, conds ...Condition) (Item, error) {
	if upd.Empty() {
		return nil, fmt.Errorf("memory: empty update")
	}
	ch, err := m.single(UpdateOp(tableName, key, upd, conds...))
	if err != nil {
		return nil, err
	}
	return copyItem(ch.NewImage), nil
}

func (m *Memory) DeleteItem(ctx context.Context, tableName string, key Key, conds ...Condition) (Item, error) {
	ch, err := m.single(DeleteOp(tableName, key, conds...))
	if err != nil {
		return nil, err
	}
	return copyItem(ch.OldImage), nil
}

func (m *Memory) single(op TransactItem) (Change, error) {
	m.mu.Lock()
	id, err := m.opRowID(op)
	if err != nil {
		m.mu.Unlock()
		return Change{}, err
	}
	current := m.rows[op.table][id]
	if !holdsAll(op.conditions, current) {
		m.mu.Unlock()
		return Change{}, fmt.Errorf("%w: %s on %s", ErrConditionFailed, describe(op.conditions), op.table)
	}
	ch, emitted := m.apply(op, id)
	if emitted {
		m.pending = append(m.pending, ch)
	}
	m.mu.Unlock()

	m.drain()
	return ch, nil
}

func (m *Memory) TransactWrite(ctx context.Context, items ...TransactItem) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxTransactItems {
		return fmt.Errorf("memory: transaction of %d items exceeds %d", len(items), MaxTransactItems)
	}

	m.mu.Lock()
	ids := make([]rowID, len(items))
	touched := map[string]bool{}
	for i, op := range items {
		id, err := m.opRowID(op)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		ref := op.table + "\x00" + id.pk + "\x00" + id.sk
		if touched[ref] {
			m.mu.Unlock()
			return fmt.Errorf("memory: transaction touches %s/%s more than once", id.pk, id.sk)
		}
		touched[ref] = true
		ids[i] = id
	}

	reasons := make([]string, len(items))
	failed := false
	for i, op := range items {
		reasons[i] = ReasonNone
		if !holdsAll(op.conditions, m.rows[op.table][ids[i]]) {
			reasons[i] = ReasonConditionFailed
			failed = true
		}
	}
	if failed {
		m.mu.Unlock()
		return &CanceledError{Reasons: reasons}
	}

	for i, op := range items {
		if ch, emitted := m.apply(op, ids[i]); emitted {
			m.pending = append(m.pending, ch)
		}
	}
	m.mu.Unlock()

	m.drain()
	return nil
}

// apply commits op and reports whether it produced a feed event. The change is
// always returned so callers can read the images.
func (m *Memory) apply(op TransactItem, id rowID) (Change, bool) {
	tbl := m.rows[op.table]
	old, existed := tbl[id]

	ch := Change{Table: op.table}
	switch op.kind {
	case opPut:
		tbl[id] = copyItem(op.item)
		ch.NewImage = tbl[id]
	case opUpdate:
		next := copyItem(old)
		if next == nil {
			next = copyItem(op.key)
		}
		applyUpdate(next, op.update)
		tbl[id] = next
		ch.NewImage = next
	case opDelete:
		if !existed {
			return ch, false
		}
		delete(tbl, id)
	}
	m.writes++

	switch {
	case op.kind == opDelete:
		ch.Operation = OpRemove
	case existed:
		ch.Operation = OpModify
	default:
		ch.Operation = OpInsert
	}
	if existed {
		ch.OldImage = old
	}

	schema := m.schemas[op.table]
	ch.Keys = Item{
		schema.PartitionKey: &types.AttributeValueMemberS{Value: id.pk},
		schema.SortKey:      &types.AttributeValueMemberS{Value: id.sk},
	}
	if !schema.Stream {
		return ch, false
	}
	m.seq++
	ch.EventID = uuid.NewString()
	ch.SequenceNumber = fmt.Sprintf("%021d", m.seq)
	return ch, true
}

// drain delivers pending changes in commit order. Only one goroutine drains
// at a time; writes made by a subscriber are queued and delivered by the same
// loop once the current event has been handled.
func (m *Memory) drain() {
	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		subs := append([]func(Change){}, m.subscribers...)
		m.mu.Unlock()
		for _, ch := range batch {
			for _, fn := range subs {
				fn(ch)
			}
		}
		m.mu.Lock()
	}
	m.draining = false
	m.mu.Unlock()
}

func (m *Memory) opRowID(op TransactItem) (rowID, error) {
	if op.kind == opPut {
		return m.rowID(op.table, op.item)
	}
	return m.rowID(op.table, op.key)
}

func (m *Memory) rowID(tableName string, attrs Item) (rowID, error) {
	schema, ok := m.schemas[tableName]
	if !ok {
		return rowID{}, fmt.Errorf("memory: unknown table %q", tableName)
	}
	pk, ok := stringAttr(attrs, schema.PartitionKey)
	if !ok {
		return rowID{}, fmt.Errorf("memory: missing key attribute %q", schema.PartitionKey)
	}
	sk, ok := stringAttr(attrs, schema.SortKey)
	if !ok {
		return rowID{}, fmt.Errorf("memory: missing key attribute %q", schema.SortKey)
	}
	return rowID{pk: pk, sk: sk}, nil
}

func holdsAll(conds []Condition, row Item) bool {
	for _, c := range conds {
		_, present := row[c.attr]
		switch c.op {
		case condExists:
			if !present {
				return false
			}
		case condNotExists:
			if present {
				return false
			}
		case condEquals:
			if v, ok := stringAttr(row, c.attr); !ok || v != c.value {
				return false
			}
		}
	}
	return true
}

func applyUpdate(row Item, u *Update) {
	for _, a := range u.set {
		row[a.name] = a.value
	}
	for _, name := range u.remove {
		delete(row, name)
	}
	for _, a := range u.add {
		delta := numberOf(a.value)
		row[a.name] = &types.AttributeValueMemberN{Value: numberOf(row[a.name]).Add(delta).String()}
	}
}

func numberOf(av types.AttributeValue) decimal.Decimal {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func stringAttr(it Item, name string) (string, bool) {
	s, ok := it[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return s.Value, true
}

func copyItem(it Item) Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func describe(conds []Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}
