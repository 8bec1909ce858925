package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-marketplace-store/internal/aws"
	"github.com/imrishuroy/go-marketplace-store/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(os.Stdout)
	slog.SetDefault(log)

	clients, err := aws.NewAWSClients(context.Background(), aws.Options{
		Region:           cfg.Region,
		DynamoDBEndpoint: cfg.DynamoDBEndpoint,
		LocalCredentials: cfg.RunLocal && cfg.DynamoDBEndpoint != "",
	})
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}
	p := NewProcessor(clients, cfg, log)

	// If RUN_LOCAL=true, replay one stream event read from LOCAL_STREAM_EVENT (a JSON file).
	if cfg.RunLocal {
		path := os.Getenv("LOCAL_STREAM_EVENT")
		if path == "" {
			log.Error("LOCAL_STREAM_EVENT must name a DynamoDB stream event file")
			os.Exit(1)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Error("read local event", "err", err)
			os.Exit(1)
		}
		var ev events.DynamoDBEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Error("decode local event", "err", err)
			os.Exit(1)
		}
		resp, err := p.Handle(context.Background(), ev)
		if err != nil {
			log.Error("local handler error", "err", err)
			os.Exit(1)
		}
		log.Info("local event processed", "records", len(ev.Records), "failures", len(resp.BatchItemFailures))
		return
	}

	lambda.Start(p.Handle)
}
