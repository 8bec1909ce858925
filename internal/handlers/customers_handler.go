package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-marketplace-store/internal/customers"
	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/validation"
)

func registerCustomersRoutes(r *gin.Engine, deps Dependencies, v *validatorv10.Validate) {
	store := deps.Customers

	r.POST("/customers", func(c *gin.Context) {
		var req validation.CreateCustomerRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		cust := model.Customer{Email: req.Email, Name: req.Name}
		if a := req.Address.Model(); a != nil {
			cust.Address = *a
		}
		if err := store.Create(c.Request.Context(), cust); err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.Header("Location", "/customers/"+cust.Email)
		c.JSON(http.StatusCreated, cust)
	})

	// one listing route, selected by query: ?orderId= or ?country=&city=
	r.GET("/customers", func(c *gin.Context) {
		ctx := c.Request.Context()
		if orderID := c.Query("orderId"); orderID != "" {
			cust, err := store.ByOrderID(ctx, orderID)
			if err != nil {
				writeError(c, deps.Log, err)
				return
			}
			c.JSON(http.StatusOK, cust)
			return
		}
		country, city := c.Query("country"), c.Query("city")
		if country == "" || city == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query", "msg": "orderId, or country and city, required"})
			return
		}
		list, err := store.ByLocation(ctx, country, city)
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"customers": list})
	})

	r.GET("/customers/:email", func(c *gin.Context) {
		cust, err := store.Get(c.Request.Context(), c.Param("email"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	})

	r.PATCH("/customers/:email", func(c *gin.Context) {
		var req validation.UpdateCustomerRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		cust, err := store.Update(c.Request.Context(), c.Param("email"), customers.Changes{
			Name:    req.Name,
			Address: req.Address.Model(),
		})
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	})

	r.DELETE("/customers/:email", func(c *gin.Context) {
		cust, err := store.Delete(c.Request.Context(), c.Param("email"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	})

	r.GET("/customers/:email/orders", func(c *gin.Context) {
		list, err := deps.Orders.ByCustomer(c.Request.Context(), c.Param("email"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	r.GET("/customers/:email/payments", func(c *gin.Context) {
		list, err := deps.Payments.ByCustomer(c.Request.Context(), c.Param("email"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"payments": list})
	})
}
