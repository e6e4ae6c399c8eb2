// Package handler maps HTTP requests to the core operations. Handlers stay
// thin: they bind and validate the request shape, delegate to a use-case
// package, and translate the result into a response — the split the
// teacher's CustomerHandler/ShowHandler pair already follows.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/0x377/flashsale-core/internal/cache"
	"github.com/0x377/flashsale-core/internal/repository"
)

// ProductHandler serves the single product read operation the core exposes.
type ProductHandler struct {
	Products *repository.ProductRepo
	Cache    *cache.StockCache
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(products *repository.ProductRepo, stockCache *cache.StockCache) *ProductHandler {
	return &ProductHandler{Products: products, Cache: stockCache}
}

// GetProduct handles GET /products/{id}.
func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}
	ctx := c.Request().Context()

	product, err := h.Products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transient"})
	}
	if !product.Active {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found"})
	}

	available := product.AvailableStock
	if h.Cache != nil {
		available, _ = h.Cache.GetOrLoad(ctx, id, func(ctx2 context.Context) (uint32, error) {
			p, err := h.Products.GetByID(ctx2, id)
			if err != nil {
				return 0, err
			}
			return p.AvailableStock, nil
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":              product.ID,
		"name":            product.Name,
		"price":           product.PriceCents,
		"initial_stock":   product.InitialStock,
		"available_stock": available,
		"active":          product.Active,
	})
}
