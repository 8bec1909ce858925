package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-marketplace-store/internal/aws"
	"github.com/imrishuroy/go-marketplace-store/internal/codec"
	"github.com/imrishuroy/go-marketplace-store/internal/config"
	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/handlers"
	"github.com/imrishuroy/go-marketplace-store/internal/orders"
	"github.com/imrishuroy/go-marketplace-store/internal/payments"
	"github.com/imrishuroy/go-marketplace-store/internal/products"
	"github.com/imrishuroy/go-marketplace-store/internal/projector"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

func setupRouter(deps handlers.Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	handlers.RegisterRoutes(r, deps)
	return r
}

// recorder is what both the coordinator and the projector count with.
type recorder interface {
	payments.Recorder
	projector.Recorder
}

// newDependencies builds the stores over client.
func newDependencies(cfg config.Config, client table.Client, metrics recorder, log *slog.Logger) handlers.Dependencies {
	cs := customers.NewStore(client, cfg.Table)
	ps := products.NewStore(client, cfg.Table)
	ordStore := orders.NewStore(client, cfg.Table)
	pay := payments.NewStore(client, cfg.PaymentsTable)
	return handlers.Dependencies{
		Customers:   cs,
		Products:    ps,
		Orders:      ordStore,
		Placement:   orders.NewService(ordStore, ps),
		Payments:    pay,
		Coordinator: payments.NewCoordinator(client, ordStore, pay, log, metrics),
		Log:         log,
	}
}

// newMemoryBackend returns an in-process store whose change feed drives the
// projector, so order counts move as they would behind the stream worker.
func newMemoryBackend(cfg config.Config, log *slog.Logger) *table.Memory {
	mem := table.NewMemory(codec.MainSchema(cfg.Table), codec.PaymentsSchema(cfg.PaymentsTable))
	proj := projector.New(customers.NewStore(mem, cfg.Table), log, nil)
	mem.Subscribe(func(ch table.Change) {
		if err := proj.Handle(context.Background(), ch); err != nil {
			log.Error("projector failed", "event_id", ch.EventID, "err", err)
		}
	})
	return mem
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(os.Stdout)
	slog.SetDefault(log)

	var deps handlers.Dependencies
	if cfg.Backend == config.BackendMemory {
		log.Info("using in-memory store", "table", cfg.Table)
		deps = newDependencies(cfg, newMemoryBackend(cfg, log), nil, log)
	} else {
		clients, err := aws.NewAWSClients(context.Background(), aws.Options{
			Region:           cfg.Region,
			DynamoDBEndpoint: cfg.DynamoDBEndpoint,
			LocalCredentials: cfg.RunLocal && cfg.DynamoDBEndpoint != "",
		})
		if err != nil {
			log.Error("failed to init aws clients", "err", err)
			os.Exit(1)
		}
		metrics := aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, log)
		deps = newDependencies(cfg, table.NewDynamo(clients.DynamoDB), metrics, log)
	}

	r := setupRouter(deps)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		log.Info("running local server", "addr", cfg.HTTPAddr)
		if err := r.Run(cfg.HTTPAddr); err != nil {
			log.Error("failed to run local server", "err", err)
			os.Exit(1)
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
