// Command seed loads a product catalog from a YAML file into the table.
//
//	seed -file products.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/go-marketplace-store/internal/aws"
	"github.com/imrishuroy/go-marketplace-store/internal/config"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/products"
	"github.com/imrishuroy/go-marketplace-store/internal/table"
)

type catalogFile struct {
	Products []catalogEntry `yaml:"products"`
}

type catalogEntry struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Price      string `yaml:"price"`
	Category   string `yaml:"category"`
	OutOfStock bool   `yaml:"outOfStock"`
}

// loadCatalog parses and checks a catalog document.
func loadCatalog(r io.Reader) ([]model.Product, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	out := make([]model.Product, 0, len(f.Products))
	seen := map[string]bool{}
	for i, e := range f.Products {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("product %d: id and name are required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("product %s listed twice", e.ID)
		}
		seen[e.ID] = true
		price, err := decimal.NewFromString(e.Price)
		if err != nil {
			return nil, fmt.Errorf("product %s: price %q: %w", e.ID, e.Price, err)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("product %s: price must not be negative", e.ID)
		}
		out = append(out, model.Product{
			ID:         e.ID,
			Name:       e.Name,
			Price:      price,
			Category:   e.Category,
			OutOfStock: e.OutOfStock,
		})
	}
	return out, nil
}

// seed creates every product, skipping ids that already exist.
func seed(ctx context.Context, store *products.Store, list []model.Product, log *slog.Logger) (created, skipped int, err error) {
	for _, p := range list {
		err := store.Create(ctx, p)
		switch {
		case errors.Is(err, model.ErrAlreadyExists):
			log.Info("product exists, skipped", "id", p.ID)
			skipped++
		case err != nil:
			return created, skipped, err
		default:
			created++
		}
	}
	return created, skipped, nil
}

func main() {
	file := flag.String("file", "products.yaml", "catalog file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	log := cfg.NewLogger(os.Stderr)

	f, err := os.Open(*file)
	if err != nil {
		log.Error("open catalog", "err", err)
		os.Exit(1)
	}
	list, err := loadCatalog(f)
	f.Close()
	if err != nil {
		log.Error("load catalog", "file", *file, "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Options{
		Region:           cfg.Region,
		DynamoDBEndpoint: cfg.DynamoDBEndpoint,
		LocalCredentials: cfg.RunLocal && cfg.DynamoDBEndpoint != "",
	})
	if err != nil {
		log.Error("failed to init aws clients", "err", err)
		os.Exit(1)
	}
	store := products.NewStore(table.NewDynamo(clients.DynamoDB), cfg.Table)

	created, skipped, err := seed(ctx, store, list, log)
	if err != nil {
		log.Error("seed failed", "created", created, "err", err)
		os.Exit(1)
	}
	log.Info("catalog seeded", "created", created, "skipped", skipped)
}
