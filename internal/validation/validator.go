package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-marketplace-store/internal/keys"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
)

// New returns a configured validator with the custom tags and struct-level
// rules of the request types registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// yyyy_MM as used by the delivered-orders index
	_ = v.RegisterValidation("month", func(fl validatorv10.FieldLevel) bool {
		return keys.ValidMonth(fl.Field().String())
	})

	v.RegisterStructValidation(updateCustomerStructValidation, UpdateCustomerRequest{})
	v.RegisterStructValidation(createProductStructValidation, CreateProductRequest{})
	v.RegisterStructValidation(updateProductStructValidation, UpdateProductRequest{})
	v.RegisterStructValidation(paymentStructValidation, PaymentRequest{})
	v.RegisterStructValidation(ordersQueryStructValidation, OrdersQuery{})

	return v
}

func updateCustomerStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateCustomerRequest)
	if req.Name == nil && req.Address == nil {
		sl.ReportError(req, "request", "UpdateCustomerRequest", "no_changes", "")
	}
}

func createProductStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateProductRequest)
	if req.Price.IsNegative() {
		sl.ReportError(req.Price, "price", "Price", "non_negative", req.Price.String())
	}
}

func updateProductStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(UpdateProductRequest)
	if req.Name == nil && req.Price == nil && req.Category == nil && req.OutOfStock == nil {
		sl.ReportError(req, "request", "UpdateProductRequest", "no_changes", "")
	}
	if req.Price != nil && req.Price.IsNegative() {
		sl.ReportError(*req.Price, "price", "Price", "non_negative", req.Price.String())
	}
}

func paymentStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(PaymentRequest)
	if !req.Amount.IsPositive() {
		sl.ReportError(req.Amount, "amount", "Amount", "positive", req.Amount.String())
	}
}

func ordersQueryStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(OrdersQuery)
	if req.Month != "" && req.Status != string(model.StatusDelivered) {
		sl.ReportError(req.Month, "month", "Month", "month_needs_delivered", fmt.Sprintf("status %s has no month partition", req.Status))
	}
}
