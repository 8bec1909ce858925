package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// DeadLetters receives records that can never be applied.
type DeadLetters interface {
	Send(ctx context.Context, body string, attributes map[string]string) error
}

// StreamHandler runs the projector over DynamoDB stream batches.
type StreamHandler struct {
	projector *Projector
	dlq       DeadLetters
	log       *slog.Logger
}

// NewStreamHandler returns a StreamHandler. dlq may be nil, in which case
// undecodable records are only logged.
func NewStreamHandler(p *Projector, dlq DeadLetters, log *slog.Logger) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{projector: p, dlq: dlq, log: log}
}

// Handle processes a batch in order. Undecodable records go to the dead-letter
// queue and are acknowledged. The first record that fails otherwise is
// reported as a batch item failure and processing stops there, so the stream
// retries from it and keeps per-partition order.
func (h *StreamHandler) Handle(ctx context.Context, ev events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for _, rec := range ev.Records {
		ch, err := ChangeFromRecord(rec)
		if err == nil {
			err = h.projector.Handle(ctx, ch)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, ErrUndecodable) {
			h.log.Error("dropping undecodable record", "event_id", rec.EventID, "err", err)
			dlqErr := h.deadLetter(ctx, rec, err)
			if dlqErr == nil {
				continue
			}
			h.log.Error("dead-letter forward failed", "event_id", rec.EventID, "err", dlqErr)
		} else {
			h.log.Error("record failed", "event_id", rec.EventID, "err", err)
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
			ItemIdentifier: rec.Change.SequenceNumber,
		})
		return resp, nil
	}
	return resp, nil
}

func (h *StreamHandler) deadLetter(ctx context.Context, rec events.DynamoDBEventRecord, cause error) error {
	if h.dlq == nil {
		return nil
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return h.dlq.Send(ctx, string(body), map[string]string{
		"EventID":        rec.EventID,
		"SequenceNumber": rec.Change.SequenceNumber,
		"Error":          cause.Error(),
	})
}

// ChangeFromRecord converts a stream record to a table change.
func ChangeFromRecord(rec events.DynamoDBEventRecord) (table.Change, error) {
	ch := table.Change{
		EventID:        rec.EventID,
		Table:          tableFromARN(rec.EventSourceArn),
		Operation:      table.Operation(rec.EventName),
		SequenceNumber: rec.Change.SequenceNumber,
	}
	var err error
	if ch.Keys, err = convertImage(rec.Change.Keys); err != nil {
		return table.Change{}, err
	}
	if ch.OldImage, err = convertImage(rec.Change.OldImage); err != nil {
		return table.Change{}, err
	}
	if ch.NewImage, err = convertImage(rec.Change.NewImage); err != nil {
		return table.Change{}, err
	}
	return ch, nil
}

// tableFromARN extracts NAME from arn:aws:dynamodb:REGION:ACCOUNT:table/NAME/stream/LABEL.
func tableFromARN(arn string) string {
	_, rest, ok := strings.Cut(arn, ":table/")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

func convertImage(img map[string]events.DynamoDBAttributeValue) (table.Item, error) {
	if len(img) == 0 {
		return nil, nil
	}
	out := make(table.Item, len(img))
	for name, v := range img {
		av, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("%w: attribute %s: %v", ErrUndecodable, name, err)
		}
		out[name] = av
	}
	return out, nil
}

func convertValue(v events.DynamoDBAttributeValue) (types.AttributeValue, error) {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}, nil
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}, nil
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}, nil
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}, nil
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}, nil
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}, nil
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}, nil
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}, nil
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, len(list))
		for i, e := range list {
			av, err := convertValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = av
		}
		return &types.AttributeValueMemberL{Value: out}, nil
	case events.DataTypeMap:
		m := v.Map()
		out := make(map[string]types.AttributeValue, len(m))
		for k, e := range m {
			av, err := convertValue(e)
			if err != nil {
				return nil, err
			}
			out[k] = av
		}
		return &types.AttributeValueMemberM{Value: out}, nil
	}
	return nil, fmt.Errorf("unsupported data type %v", v.DataType())
}
