// Package handlers exposes the marketplace over HTTP with gin.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/orders"
	"github.com/imrishuroy/go-marketplace-store/internal/payments"
	"github.com/imrishuroy/go-marketplace-store/internal/products"
	"github.com/imrishuroy/go-marketplace-store/internal/validation"
)

// Dependencies groups what the routes are served from.
type Dependencies struct {
	Customers   *customers.Store
	Products    *products.Store
	Orders      *orders.Store
	Placement   *orders.Service
	Payments    *payments.Store
	Coordinator *payments.Coordinator
	Log         *slog.Logger
}

// RegisterRoutes registers every route of the API on r.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	v := validation.New()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	registerCustomersRoutes(r, deps, v)
	registerProductsRoutes(r, deps, v)
	registerOrdersRoutes(r, deps, v)
	registerPaymentsRoutes(r, deps, v)
}

// writeError maps domain errors to a status and writes the error body.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, model.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, model.ErrAlreadyExists):
		status, code = http.StatusConflict, "already_exists"
	case errors.Is(err, model.ErrConflictCanceled):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, orders.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrUnknownProducts),
		errors.Is(err, orders.ErrOutOfStock),
		errors.Is(err, orders.ErrNoLineItems),
		errors.Is(err, orders.ErrTooManyLineItems):
		status, code = http.StatusUnprocessableEntity, "order_rejected"
	case errors.Is(err, payments.ErrInvalidAmount), errors.Is(err, keys.ErrMalformedKey):
		status, code = http.StatusBadRequest, "bad_request"
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": code})
		return
	}
	c.JSON(status, gin.H{"error": code, "detail": err.Error()})
}
