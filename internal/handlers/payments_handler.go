package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-marketplace-store/internal/validation"
)

func registerPaymentsRoutes(r *gin.Engine, deps Dependencies, v *validatorv10.Validate) {
	// NOT_ALLOWED and SKIPPED are business outcomes, so they are 200s too
	r.POST("/payments", func(c *gin.Context) {
		var req validation.PaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		res, err := deps.Coordinator.PayOrder(c.Request.Context(), req.CustomerID, req.OrderID, req.Amount)
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": res})
	})
}
