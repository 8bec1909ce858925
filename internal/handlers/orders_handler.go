package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/validation"
)

func registerOrdersRoutes(r *gin.Engine, deps Dependencies, v *validatorv10.Validate) {
	store := deps.Orders

	r.POST("/orders", func(c *gin.Context) {
		var req validation.PlaceOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		d, err := deps.Placement.Place(c.Request.Context(), req.CustomerEmail, req.Products)
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		deps.Log.Info("order placed", "order_id", d.Order.ID, "customer", d.Order.CustomerEmail, "lines", len(d.Products))

		c.Header("Location", fmt.Sprintf("/orders/%s", d.Order.ID))
		c.JSON(http.StatusCreated, d)
	})

	r.GET("/orders", func(c *gin.Context) {
		var q validation.OrdersQuery
		if err := validation.BindQueryAndValidate(c, &q, v); err != nil {
			return
		}
		list, err := store.ByStatus(c.Request.Context(), model.Status(q.Status), q.Month)
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/orders/:id", func(c *gin.Context) {
		d, err := store.Details(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})

	r.POST("/orders/:id/deliver", func(c *gin.Context) {
		o, err := store.Deliver(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, o)
	})

	r.DELETE("/orders/:id", func(c *gin.Context) {
		d, err := store.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, d)
	})
}
