package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-marketplace-store/internal/model"
	"github.com/imrishuroy/go-marketplace-store/internal/products"
	"github.com/imrishuroy/go-marketplace-store/internal/validation"
)

func registerProductsRoutes(r *gin.Engine, deps Dependencies, v *validatorv10.Validate) {
	store := deps.Products

	r.POST("/products", func(c *gin.Context) {
		var req validation.CreateProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		p := model.Product{
			ID:         req.ID,
			Name:       req.Name,
			Price:      req.Price,
			Category:   req.Category,
			OutOfStock: req.OutOfStock,
		}
		if err := store.Create(c.Request.Context(), p); err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.Header("Location", "/products/"+p.ID)
		c.JSON(http.StatusCreated, p)
	})

	r.GET("/products", func(c *gin.Context) {
		ctx := c.Request.Context()
		var (
			list []model.Product
			err  error
		)
		switch {
		case c.Query("outOfStock") != "":
			out, perr := strconv.ParseBool(c.Query("outOfStock"))
			if perr != nil || !out {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_query", "msg": "outOfStock only supports true"})
				return
			}
			list, err = store.OutOfStock(ctx)
		case c.Query("category") != "":
			list, err = store.ByCategory(ctx, c.Query("category"))
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_query", "msg": "category or outOfStock=true required"})
			return
		}
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": list})
	})

	r.GET("/products/:id", func(c *gin.Context) {
		p, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.PATCH("/products/:id", func(c *gin.Context) {
		var req validation.UpdateProductRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		p, err := store.Update(c.Request.Context(), c.Param("id"), products.Changes{
			Name:       req.Name,
			Price:      req.Price,
			Category:   req.Category,
			OutOfStock: req.OutOfStock,
		})
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.DELETE("/products/:id", func(c *gin.Context) {
		p, err := store.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.GET("/products/:id/orders", func(c *gin.Context) {
		list, err := deps.Orders.ByProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, deps.Log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})
}
