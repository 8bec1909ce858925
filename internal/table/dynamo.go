package table

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-marketplace-store/internal/aws"
)

const (
	batchGetLimit    = 100
	batchGetAttempts = 5
)

// Dynamo is the Client backed by DynamoDB.
type Dynamo struct {
	client aws.DynamoDBAPI
	// backoff is the base delay between retries of unprocessed batch keys.
	backoff time.Duration
}

// NewDynamo returns a Client issuing requests through client.
func NewDynamo(client aws.DynamoDBAPI) *Dynamo {
	return &Dynamo{client: client, backoff: 50 * time.Millisecond}
}

func (d *Dynamo) GetItem(ctx context.Context, tableName string, key Key) (Item, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &tableName,
		Key:            key,
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", mapError(err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

func (d *Dynamo) Query(ctx context.Context, q Query) ([]Item, error) {
	kc := expression.Key(q.PartitionAttr).Equal(expression.Value(q.Partition))
	if q.SortPrefix != "" {
		kc = kc.And(expression.Key(q.SortAttr).BeginsWith(q.SortPrefix))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(kc).Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	input := &dyn.QueryInput{
		TableName:                 &q.Table,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          sdkaws.Bool(!q.Descending),
	}
	if q.Index != "" {
		input.IndexName = &q.Index
	} else {
		input.ConsistentRead = sdkaws.Bool(true)
	}

	var items []Item
	p := dyn.NewQueryPaginator(d.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q.Partition, mapError(err))
		}
		items = append(items, out.Items...)
	}
	return items, nil
}

func (d *Dynamo) BatchGetItems(ctx context.Context, tableName string, keys []Key) ([]Item, error) {
	var items []Item
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		pending := map[string]types.KeysAndAttributes{
			tableName: {Keys: keys[start:end], ConsistentRead: sdkaws.Bool(true)},
		}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == batchGetAttempts {
				return nil, fmt.Errorf("batch get: %d keys still unprocessed after %d attempts",
					len(pending[tableName].Keys), batchGetAttempts)
			}
			if attempt > 0 {
				if err := sleep(ctx, d.backoff<<(attempt-1)); err != nil {
					return nil, err
				}
			}
			out, err := d.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: pending})
			if err != nil {
				return nil, fmt.Errorf("batch get: %w", mapError(err))
			}
			items = append(items, out.Responses[tableName]...)
			pending = out.UnprocessedKeys
		}
	}
	return items, nil
}

func (d *Dynamo) PutItem(ctx context.Context, tableName string, item Item, conds ...Condition) error {
	ce, err := buildExpressions(nil, conds)
	if err != nil {
		return err
	}
	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 &tableName,
		Item:                      item,
		ConditionExpression:       ce.condition,
		ExpressionAttributeNames:  ce.names,
		ExpressionAttributeValues: ce.values,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", mapError(err))
	}
	return nil
}

func (d *Dynamo) UpdateItem(ctx context.Context, tableName string, key Key, upd *Update, conds ...Condition) (Item, error) {
	if upd.Empty() {
		return nil, errors.New("update item: empty update")
	}
	ce, err := buildExpressions(upd, conds)
	if err != nil {
		return nil, err
	}
	out, err := d.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &tableName,
		Key:                       key,
		UpdateExpression:          ce.update,
		ConditionExpression:       ce.condition,
		ExpressionAttributeNames:  ce.names,
		ExpressionAttributeValues: ce.values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("update item: %w", mapError(err))
	}
	return out.Attributes, nil
}

func (d *Dynamo) DeleteItem(ctx context.Context, tableName string, key Key, conds ...Condition) (Item, error) {
	ce, err := buildExpressions(nil, conds)
	if err != nil {
		return nil, err
	}
	out, err := d.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:                 &tableName,
		Key:                       key,
		ConditionExpression:       ce.condition,
		ExpressionAttributeNames:  ce.names,
		ExpressionAttributeValues: ce.values,
		ReturnValues:              types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("delete item: %w", mapError(err))
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return out.Attributes, nil
}

func (d *Dynamo) TransactWrite(ctx context.Context, items ...TransactItem) error {
	if len(items) == 0 {
		return nil
	}
	if len(items) > MaxTransactItems {
		return fmt.Errorf("transact write: %d items exceeds %d", len(items), MaxTransactItems)
	}

	twi := make([]types.TransactWriteItem, 0, len(items))
	for _, op := range items {
		tableName := op.table
		var upd *Update
		if op.kind == opUpdate {
			upd = op.update
		}
		ce, err := buildExpressions(upd, op.conditions)
		if err != nil {
			return err
		}
		switch op.kind {
		case opPut:
			twi = append(twi, types.TransactWriteItem{Put: &types.Put{
				TableName:                 &tableName,
				Item:                      op.item,
				ConditionExpression:       ce.condition,
				ExpressionAttributeNames:  ce.names,
				ExpressionAttributeValues: ce.values,
			}})
		case opUpdate:
			twi = append(twi, types.TransactWriteItem{Update: &types.Update{
				TableName:                 &tableName,
				Key:                       op.key,
				UpdateExpression:          ce.update,
				ConditionExpression:       ce.condition,
				ExpressionAttributeNames:  ce.names,
				ExpressionAttributeValues: ce.values,
			}})
		case opDelete:
			twi = append(twi, types.TransactWriteItem{Delete: &types.Delete{
				TableName:                 &tableName,
				Key:                       op.key,
				ConditionExpression:       ce.condition,
				ExpressionAttributeNames:  ce.names,
				ExpressionAttributeValues: ce.values,
			}})
		}
	}

	_, err := d.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: twi})
	if err != nil {
		return fmt.Errorf("transact write: %w", mapError(err))
	}
	return nil
}

type compiled struct {
	update    *string
	condition *string
	names     map[string]string
	values    map[string]types.AttributeValue
}

// buildExpressions renders the update actions by hand, since their operands
// are already attribute values, and the condition through the expression
// builder. Placeholders of the two never collide: the builder numbers them
// #0/:0, the update uses #u0/:u0.
func buildExpressions(upd *Update, conds []Condition) (compiled, error) {
	var c compiled
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if !upd.Empty() {
		var clauses []string
		n := 0
		placeholder := func(name string, v types.AttributeValue) (string, string) {
			np, vp := "#u"+strconv.Itoa(n), ":u"+strconv.Itoa(n)
			n++
			names[np] = name
			if v != nil {
				values[vp] = v
			}
			return np, vp
		}
		if len(upd.set) > 0 {
			parts := make([]string, 0, len(upd.set))
			for _, a := range upd.set {
				np, vp := placeholder(a.name, a.value)
				parts = append(parts, np+" = "+vp)
			}
			clauses = append(clauses, "SET "+strings.Join(parts, ", "))
		}
		if len(upd.remove) > 0 {
			parts := make([]string, 0, len(upd.remove))
			for _, name := range upd.remove {
				np, _ := placeholder(name, nil)
				parts = append(parts, np)
			}
			clauses = append(clauses, "REMOVE "+strings.Join(parts, ", "))
		}
		if len(upd.add) > 0 {
			parts := make([]string, 0, len(upd.add))
			for _, a := range upd.add {
				np, vp := placeholder(a.name, a.value)
				parts = append(parts, np+" "+vp)
			}
			clauses = append(clauses, "ADD "+strings.Join(parts, ", "))
		}
		c.update = sdkaws.String(strings.Join(clauses, " "))
	}

	if len(conds) > 0 {
		cb := conds[0].builder()
		if len(conds) > 1 {
			rest := make([]expression.ConditionBuilder, 0, len(conds)-2)
			for _, cond := range conds[2:] {
				rest = append(rest, cond.builder())
			}
			cb = cb.And(conds[1].builder(), rest...)
		}
		expr, err := expression.NewBuilder().WithCondition(cb).Build()
		if err != nil {
			return c, fmt.Errorf("build condition: %w", err)
		}
		c.condition = expr.Condition()
		for k, v := range expr.Names() {
			names[k] = v
		}
		for k, v := range expr.Values() {
			values[k] = v
		}
	}

	if len(names) > 0 {
		c.names = names
	}
	if len(values) > 0 {
		c.values = values
	}
	return c, nil
}

func (c Condition) builder() expression.ConditionBuilder {
	switch c.op {
	case condExists:
		return expression.AttributeExists(expression.Name(c.attr))
	case condNotExists:
		return expression.AttributeNotExists(expression.Name(c.attr))
	default:
		return expression.Name(c.attr).Equal(expression.Value(c.value))
	}
}

// mapError translates conditional failures into ErrConditionFailed and
// *CanceledError. Other errors pass through unchanged.
func mapError(err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("%w: %s", ErrConditionFailed, ccf.ErrorMessage())
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		reasons := make([]string, len(tce.CancellationReasons))
		for i, r := range tce.CancellationReasons {
			reasons[i] = sdkaws.ToString(r.Code)
		}
		return &CanceledError{Reasons: reasons, cause: err}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ConditionalCheckFailedException":
			return fmt.Errorf("%w: %s", ErrConditionFailed, apiErr.ErrorMessage())
		case "TransactionCanceledException":
			return &CanceledError{cause: err}
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
