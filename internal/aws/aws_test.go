package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != DefaultRegion {
		t.Fatalf("expected default region %q, got %s", DefaultRegion, cfg.Region)
	}
}

func TestLoadAWSConfig_ExplicitRegion(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), Options{Region: "eu-west-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("region mismatch, got %s", cfg.Region)
	}
}

func TestLoadAWSConfig_LocalCredentials(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), Options{LocalCredentials: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "local" || creds.SecretAccessKey != "local" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestDynamoEndpointOverride(t *testing.T) {
	if got := dynamoOptions(Options{}); len(got) != 0 {
		t.Fatalf("expected no options without an endpoint, got %d", len(got))
	}
	fns := dynamoOptions(Options{DynamoDBEndpoint: "http://localhost:8000"})
	if len(fns) != 1 {
		t.Fatalf("expected one option, got %d", len(fns))
	}
	var o dynamodb.Options
	fns[0](&o)
	if o.BaseEndpoint == nil || *o.BaseEndpoint != "http://localhost:8000" {
		t.Fatalf("endpoint not applied: %v", o.BaseEndpoint)
	}
}

type mockSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = params
	return &sqs.SendMessageOutput{}, m.err
}

func TestPublisherSend(t *testing.T) {
	q := &mockSQS{}
	p := NewPublisher(q, "https://sqs.local/dlq")

	err := p.Send(context.Background(), `{"k":1}`, map[string]string{"EventID": "e1", "Empty": ""})
	if err != nil {
		t.Fatal(err)
	}
	if *q.input.QueueUrl != "https://sqs.local/dlq" || *q.input.MessageBody != `{"k":1}` {
		t.Fatalf("unexpected input %+v", q.input)
	}
	attr, ok := q.input.MessageAttributes["EventID"]
	if !ok || *attr.StringValue != "e1" || *attr.DataType != "String" {
		t.Fatalf("unexpected attributes %+v", q.input.MessageAttributes)
	}
	if _, ok := q.input.MessageAttributes["Empty"]; ok {
		t.Fatal("empty attribute should be dropped")
	}

	q.err = errors.New("boom")
	if err := p.Send(context.Background(), "x", nil); !errors.Is(err, q.err) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestMetricsCount(t *testing.T) {
	cw := &mockCloudWatch{}
	m := NewMetrics(cw, "Marketplace", nil)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.nowFunc = func() time.Time { return fixed }

	m.Count(context.Background(), "PaymentOutcome", 1, map[string]string{"Outcome": "SUCCESS", "Env": "test"})

	if len(cw.inputs) != 1 {
		t.Fatalf("expected one call, got %d", len(cw.inputs))
	}
	in := cw.inputs[0]
	if *in.Namespace != "Marketplace" {
		t.Fatalf("namespace = %s", *in.Namespace)
	}
	d := in.MetricData[0]
	if *d.MetricName != "PaymentOutcome" || *d.Value != 1 || d.Unit != cwtypes.StandardUnitCount || !d.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected datum %+v", d)
	}
	if len(d.Dimensions) != 2 || *d.Dimensions[0].Name != "Env" || *d.Dimensions[1].Value != "SUCCESS" {
		t.Fatalf("dimensions not sorted by name: %+v", d.Dimensions)
	}

	// failures are swallowed
	cw.err = errors.New("throttled")
	m.Count(context.Background(), "PaymentOutcome", 1, nil)
	if len(cw.inputs) != 2 {
		t.Fatal("expected second call")
	}
}
