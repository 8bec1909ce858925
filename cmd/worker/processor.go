package main

import (
	"log/slog"

	"github.com/imrishuroy/go-marketplace-store/internal/aws"
	"github.com/imrishuroy/go-marketplace-store/internal/config"
	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/projector"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

// NewProcessor wires the stream handler: the projector writes through
// DynamoDB, counts to CloudWatch and dead-letters to DLQ_URL when it is set.
func NewProcessor(clients *aws.AWSClients, cfg config.Config, log *slog.Logger) *projector.StreamHandler {
	store := customers.NewStore(table.NewDynamo(clients.DynamoDB), cfg.Table)

	var metrics projector.Recorder
	if clients.CloudWatch != nil {
		metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, log)
	}
	var dlq projector.DeadLetters
	if cfg.DLQURL != "" {
		dlq = aws.NewPublisher(clients.SQS, cfg.DLQURL)
	}
	return projector.NewStreamHandler(projector.New(store, log, metrics), dlq, log)
}
