package table

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// recordingDynamo captures requests and replays canned responses.
type recordingDynamo struct {
	mu sync.Mutex

	puts      []*dyn.PutItemInput
	updates   []*dyn.UpdateItemInput
	transacts []*dyn.TransactWriteItemsInput
	batches   []*dyn.BatchGetItemInput
	queries   []*dyn.QueryInput

	err          error
	batchReplies []*dyn.BatchGetItemOutput
	queryPages   []*dyn.QueryOutput
}

func (r *recordingDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	return &dyn.GetItemOutput{}, r.err
}

func (r *recordingDynamo) Query(ctx context.Context, in *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, in)
	if len(r.queryPages) == 0 {
		return &dyn.QueryOutput{}, r.err
	}
	out := r.queryPages[0]
	r.queryPages = r.queryPages[1:]
	return out, nil
}

func (r *recordingDynamo) BatchGetItem(ctx context.Context, in *dyn.BatchGetItemInput, _ ...func(*dyn.Options)) (*dyn.BatchGetItemOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, in)
	if len(r.batchReplies) == 0 {
		return &dyn.BatchGetItemOutput{}, r.err
	}
	out := r.batchReplies[0]
	r.batchReplies = r.batchReplies[1:]
	return out, nil
}

func (r *recordingDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts = append(r.puts, in)
	return &dyn.PutItemOutput{}, r.err
}

func (r *recordingDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, in)
	return &dyn.UpdateItemOutput{}, r.err
}

func (r *recordingDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, _ ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return &dyn.DeleteItemOutput{}, r.err
}

func (r *recordingDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, _ ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transacts = append(r.transacts, in)
	return &dyn.TransactWriteItemsOutput{}, r.err
}

func TestDynamo_UpdateExpressionRendering(t *testing.T) {
	rec := &recordingDynamo{}
	d := NewDynamo(rec)

	upd := NewUpdate().
		Set("gsi1pk", s("ORDER#PAID")).
		Remove("GSI2PK").
		Add("Data", n("1"))
	_, err := d.UpdateItem(context.Background(), "main", Key{"pk": s("A"), "sk": s("A")}, upd, Equals("gsi1pk", "ORDER#OPEN"))
	if err != nil {
		t.Fatal(err)
	}
	in := rec.updates[0]
	if got := sdkaws.ToString(in.UpdateExpression); got != "SET #u0 = :u0 REMOVE #u1 ADD #u2 :u2" {
		t.Fatalf("unexpected update expression %q", got)
	}
	if in.ExpressionAttributeNames["#u1"] != "GSI2PK" {
		t.Fatalf("missing remove name: %v", in.ExpressionAttributeNames)
	}
	if _, ok := in.ExpressionAttributeValues[":u1"]; ok {
		t.Fatal("REMOVE must not bind a value")
	}
	if in.ConditionExpression == nil {
		t.Fatal("condition expression not set")
	}
	found := false
	for _, v := range in.ExpressionAttributeNames {
		if v == "gsi1pk" {
			found = true
		}
	}
	if !found {
		t.Fatal("condition attribute name not merged")
	}
	if in.ReturnValues != types.ReturnValueAllNew {
		t.Fatalf("unexpected return values %v", in.ReturnValues)
	}
}

func TestDynamo_PutWithoutConditionLeavesMapsNil(t *testing.T) {
	rec := &recordingDynamo{}
	d := NewDynamo(rec)
	if err := d.PutItem(context.Background(), "main", row("A", "A")); err != nil {
		t.Fatal(err)
	}
	in := rec.puts[0]
	if in.ConditionExpression != nil || in.ExpressionAttributeNames != nil || in.ExpressionAttributeValues != nil {
		t.Fatalf("unconditional put must not carry expressions: %+v", in)
	}
}

func TestDynamo_ConditionalFailureMapping(t *testing.T) {
	rec := &recordingDynamo{err: &types.ConditionalCheckFailedException{Message: sdkaws.String("exists")}}
	d := NewDynamo(rec)
	err := d.PutItem(context.Background(), "main", row("A", "A"), AttributeNotExists("pk"))
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}

	rec.err = &smithy.GenericAPIError{Code: "ConditionalCheckFailedException", Message: "exists"}
	err = d.PutItem(context.Background(), "main", row("A", "A"), AttributeNotExists("pk"))
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed from API error code, got %v", err)
	}
}

func TestDynamo_TransactionCanceledMapping(t *testing.T) {
	rec := &recordingDynamo{err: &types.TransactionCanceledException{
		Message: sdkaws.String("canceled"),
		CancellationReasons: []types.CancellationReason{
			{Code: sdkaws.String("None")},
			{Code: sdkaws.String("ConditionalCheckFailed")},
		},
	}}
	d := NewDynamo(rec)
	err := d.TransactWrite(context.Background(),
		PutOp("payments", Item{"PK": s("PAYMENT#a"), "SK": s("t")}),
		UpdateOp("main", Key{"pk": s("O"), "sk": s("O")}, NewUpdate().Set("gsi1pk", s("ORDER#PAID")), Equals("gsi1pk", "ORDER#OPEN")),
	)
	var ce *CanceledError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CanceledError, got %v", err)
	}
	if !ce.ConditionFailed(1) || ce.ConditionFailed(0) {
		t.Fatalf("unexpected reasons %v", ce.Reasons)
	}

	in := rec.transacts[0]
	if len(in.TransactItems) != 2 || in.TransactItems[0].Put == nil || in.TransactItems[1].Update == nil {
		t.Fatalf("unexpected transact items %+v", in.TransactItems)
	}
	if !strings.HasPrefix(sdkaws.ToString(in.TransactItems[1].Update.UpdateExpression), "SET ") {
		t.Fatal("update op lost its expression")
	}
}

func TestDynamo_BatchGetRetriesUnprocessedKeys(t *testing.T) {
	k1 := Key{"pk": s("A"), "sk": s("A")}
	k2 := Key{"pk": s("B"), "sk": s("B")}
	rec := &recordingDynamo{batchReplies: []*dyn.BatchGetItemOutput{
		{
			Responses:       map[string][]map[string]types.AttributeValue{"main": {row("A", "A")}},
			UnprocessedKeys: map[string]types.KeysAndAttributes{"main": {Keys: []map[string]types.AttributeValue{k2}}},
		},
		{
			Responses: map[string][]map[string]types.AttributeValue{"main": {row("B", "B")}},
		},
	}}
	d := NewDynamo(rec)
	d.backoff = time.Millisecond

	items, err := d.BatchGetItems(context.Background(), "main", []Key{k1, k2})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || len(rec.batches) != 2 {
		t.Fatalf("expected 2 items over 2 calls, got %d items / %d calls", len(items), len(rec.batches))
	}
}

func TestDynamo_QueryFollowsPages(t *testing.T) {
	rec := &recordingDynamo{queryPages: []*dyn.QueryOutput{
		{Items: []map[string]types.AttributeValue{row("C", "1")}, LastEvaluatedKey: row("C", "1")},
		{Items: []map[string]types.AttributeValue{row("C", "2")}},
	}}
	d := NewDynamo(rec)
	items, err := d.Query(context.Background(), Query{
		Table: "main", Index: "gsi1", PartitionAttr: "gsi1pk", Partition: "CAT#BOOKS",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if sdkaws.ToString(rec.queries[0].IndexName) != "gsi1" {
		t.Fatal("index name not set")
	}
	if rec.queries[0].ConsistentRead != nil {
		t.Fatal("consistent read is not allowed on a secondary index")
	}
	if rec.queries[1].ExclusiveStartKey == nil {
		t.Fatal("second page must start after the first")
	}
}
