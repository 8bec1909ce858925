package codec

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// PaymentTimeLayout keeps nanoseconds so two payments of one customer do not
// share a sort key.
const PaymentTimeLayout = "2006-01-02T15:04:05.000000000Z"

// amount stores a decimal as a DynamoDB number.
type amount decimal.Decimal

func (a amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return Decimal(decimal.Decimal(a)), nil
}

func (a *amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return fmt.Errorf("%w: Amount is %T, want a number", ErrBadValue, av)
	}
	d, err := decimal.NewFromString(n.Value)
	if err != nil {
		return fmt.Errorf("%w: Amount=%q", ErrBadValue, n.Value)
	}
	*a = amount(d)
	return nil
}

// paymentRecord is the row shape of the payments table.
type paymentRecord struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	Amount amount `dynamodbav:"Amount"`
}

func EncodePayment(p model.Payment) (table.Item, error) {
	item, err := attributevalue.MarshalMap(paymentRecord{
		PK:     keys.PaymentPartition(p.CustomerID),
		SK:     p.Timestamp.UTC().Format(PaymentTimeLayout),
		Amount: amount(p.Amount),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}
	return item, nil
}

func DecodePayment(it table.Item) (model.Payment, error) {
	var rec paymentRecord
	if err := attributevalue.UnmarshalMap(it, &rec); err != nil {
		return model.Payment{}, fmt.Errorf("unmarshal payment: %w", err)
	}
	customerID, err := keys.TrimPrefix(rec.PK, keys.PaymentPrefix)
	if err != nil {
		return model.Payment{}, err
	}
	ts, err := time.Parse(PaymentTimeLayout, rec.SK)
	if err != nil {
		return model.Payment{}, fmt.Errorf("%w: SK=%q", ErrBadValue, rec.SK)
	}
	return model.Payment{
		CustomerID: customerID,
		Timestamp:  ts,
		Amount:     decimal.Decimal(rec.Amount),
	}, nil
}
