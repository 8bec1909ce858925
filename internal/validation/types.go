package validation

import (
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
)

// Address is the postal address of a customer.
type Address struct {
	Country       string `json:"country" validate:"required_with=City,excludes=#"`
	City          string `json:"city" validate:"required_with=Country,excludes=#"`
	StreetAddress string `json:"streetAddress"`
}

func (a *Address) Model() *model.Address {
	if a == nil {
		return nil
	}
	return &model.Address{Country: a.Country, City: a.City, StreetAddress: a.StreetAddress}
}

// CreateCustomerRequest is the payload for POST /customers
type CreateCustomerRequest struct {
	Email   string   `json:"email" validate:"required,email"`
	Name    string   `json:"name" validate:"required"`
	Address *Address `json:"address,omitempty"`
}

// UpdateCustomerRequest is the payload for PATCH /customers/:email. At least
// one field must be present.
type UpdateCustomerRequest struct {
	Name    *string  `json:"name,omitempty" validate:"omitempty,min=1"`
	Address *Address `json:"address,omitempty"`
}

// CreateProductRequest is the payload for POST /products
type CreateProductRequest struct {
	ID         string          `json:"id" validate:"required,excludes=#"`
	Name       string          `json:"name" validate:"required"`
	Price      decimal.Decimal `json:"price"` // checked at struct level, must be >= 0
	Category   string          `json:"category,omitempty" validate:"excludes=#"`
	OutOfStock bool            `json:"outOfStock,omitempty"`
}

// UpdateProductRequest is the payload for PATCH /products/:id
type UpdateProductRequest struct {
	Name       *string          `json:"name,omitempty" validate:"omitempty,min=1"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	Category   *string          `json:"category,omitempty" validate:"omitempty,excludes=#"`
	OutOfStock *bool            `json:"outOfStock,omitempty"`
}

// PlaceOrderRequest is the payload for POST /orders. Products maps product id
// to quantity.
type PlaceOrderRequest struct {
	CustomerEmail string         `json:"customerEmail" validate:"required,email"`
	Products      map[string]int `json:"products" validate:"required,min=1,max=98,dive,keys,required,endkeys,min=1"`
}

// PaymentRequest is the payload for POST /payments
type PaymentRequest struct {
	CustomerID string          `json:"customerId" validate:"required"`
	OrderID    string          `json:"orderId" validate:"required"`
	Amount     decimal.Decimal `json:"amount"` // must be > 0
}

// OrdersQuery is the query string of GET /orders. Month (yyyy_MM) only
// narrows DELIVERED orders.
type OrdersQuery struct {
	Status string `form:"status" validate:"required,oneof=OPEN DELIVERED PAID"`
	Month  string `form:"month" validate:"omitempty,month"`
}
