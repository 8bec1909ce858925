// Package model holds the marketplace domain types shared by the repositories,
// the payment coordinator and the HTTP layer.
package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflictCanceled means a conditional or transactional write lost
	// against a concurrent change.
	ErrConflictCanceled = errors.New("conflicting concurrent change")
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusDelivered Status = "DELIVERED"
	StatusPaid      Status = "PAID"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusDelivered, StatusPaid:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next. OPEN is the
// only non-terminal state.
func (s Status) CanTransition(next Status) bool {
	return s == StatusOpen && (next == StatusDelivered || next == StatusPaid)
}

// PaymentOutcome is the business result of a payment attempt.
type PaymentOutcome string

const (
	PaymentSuccess    PaymentOutcome = "SUCCESS"
	PaymentSkipped    PaymentOutcome = "SKIPPED"
	PaymentNotAllowed PaymentOutcome = "NOT_ALLOWED"
)

type Address struct {
	Country       string `json:"country"`
	City          string `json:"city"`
	StreetAddress string `json:"streetAddress"`
}

type Customer struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Address    Address `json:"address"`
	OrderCount int64   `json:"orderCount"`
}

type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Category   string          `json:"category"`
	OutOfStock bool            `json:"outOfStock"`
}

// Order is the canonical order record.
type Order struct {
	ID            string          `json:"id"`
	CustomerEmail string          `json:"customerEmail"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// OrderedProduct is a line item. Name and price are snapshots taken when the
// order was placed.
type OrderedProduct struct {
	OrderID   string          `json:"orderId"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Subtotal is price times quantity.
func (p OrderedProduct) Subtotal() decimal.Decimal {
	return p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// OrderDetails is an order with its line items.
type OrderDetails struct {
	Order    Order            `json:"order"`
	Products []OrderedProduct `json:"products"`
}

// CustomerOrder is the customer's denormalized view of an order.
type CustomerOrder struct {
	CustomerEmail string          `json:"customerEmail"`
	OrderID       string          `json:"orderId"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	Total         decimal.Decimal `json:"total"`
}

// CustomerView projects an order into its customer-side row.
func (o Order) CustomerView() CustomerOrder {
	return CustomerOrder{
		CustomerEmail: o.CustomerEmail,
		OrderID:       o.ID,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
		DeliveredAt:   o.DeliveredAt,
		Total:         o.Total,
	}
}

// Total sums the line item subtotals.
func Total(lines []OrderedProduct) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

type Payment struct {
	CustomerID string          `json:"customerId"`
	Timestamp  time.Time       `json:"timestamp"`
	Amount     decimal.Decimal `json:"amount"`
}
