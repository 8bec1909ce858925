package aws

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes counters to CloudWatch under one namespace. Publishing is
// best effort: a failed call is logged and dropped.
type Metrics struct {
	CloudWatch CloudWatchAPI
	Namespace  string
	Log        *slog.Logger
	nowFunc    func() time.Time
}

// NewMetrics returns a Metrics bound to a namespace.
func NewMetrics(cw CloudWatchAPI, namespace string, log *slog.Logger) *Metrics {
	if log == nil {
		log = slog.Default()
	}
	return &Metrics{CloudWatch: cw, Namespace: namespace, Log: log, nowFunc: time.Now}
}

// Count records value occurrences of metric with the given dimensions.
func (m *Metrics) Count(ctx context.Context, metric string, value float64, dims map[string]string) {
	names := make([]string, 0, len(dims))
	for k := range dims {
		names = append(names, k)
	}
	sort.Strings(names)
	dimensions := make([]cwtypes.Dimension, 0, len(names))
	for _, k := range names {
		dimensions = append(dimensions, cwtypes.Dimension{Name: awsString(k), Value: awsString(dims[k])})
	}

	now := m.nowFunc()
	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(m.Namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: awsString(metric),
			Dimensions: dimensions,
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &value,
		}},
	})
	if err != nil {
		m.Log.Warn("put metric failed", "metric", metric, "err", err)
	}
}
