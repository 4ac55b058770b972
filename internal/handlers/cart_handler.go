package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mudichurmart/storefront/internal/cart"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/checkout"
	"github.com/mudichurmart/storefront/internal/validation"
)

type cartLine struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	ImageURL  string  `json:"imageUrl,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Stock     int     `json:"stock"`
	LineTotal float64 `json:"lineTotal"`
}

type cartView struct {
	Items []cartLine `json:"items"`
	Total float64    `json:"total"`
	Count int        `json:"count"`
}

func viewCart(l *cart.Ledger) cartView {
	items := l.Items()
	v := cartView{Items: make([]cartLine, 0, len(items))}
	for _, li := range items {
		v.Items = append(v.Items, cartLine{
			ProductID: li.Product.ID,
			Name:      li.Product.Name,
			ImageURL:  li.Product.ImageURL,
			UnitPrice: li.UnitPrice().Round(2).InexactFloat64(),
			Quantity:  li.Quantity,
			Stock:     li.Product.Stock,
			LineTotal: li.Total().Round(2).InexactFloat64(),
		})
		v.Count += li.Quantity
	}
	v.Total = cart.Total(items).Round(2).InexactFloat64()
	return v
}

// RegisterCartRoutes registers the per-session cart endpoints.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Logger.With().Str("component", "cart").Logger()

	g := r.Group("/api/cart", withSession(cfg.Sessions))

	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, viewCart(sessionFrom(c).Cart))
	})

	g.POST("/items", func(c *gin.Context) {
		var req validation.AddCartItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		ctx := c.Request.Context()
		p, err := cfg.Catalog.Get(ctx, req.ProductID)
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}

		s := sessionFrom(c)
		if !editCart(c, log, func(l *cart.Ledger) error {
			_, err := l.Add(ctx, *p, req.Quantity)
			return err
		}) {
			return
		}
		c.JSON(http.StatusOK, viewCart(s.Cart))
	})

	g.PATCH("/items/:productID", func(c *gin.Context) {
		var req validation.UpdateCartItemRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		s := sessionFrom(c)
		if !editCart(c, log, func(l *cart.Ledger) error {
			return l.UpdateQuantity(c.Request.Context(), c.Param("productID"), *req.Quantity)
		}) {
			return
		}
		c.JSON(http.StatusOK, viewCart(s.Cart))
	})

	g.DELETE("/items/:productID", func(c *gin.Context) {
		s := sessionFrom(c)
		if !editCart(c, log, func(l *cart.Ledger) error {
			return l.Remove(c.Request.Context(), c.Param("productID"))
		}) {
			return
		}
		c.JSON(http.StatusOK, viewCart(s.Cart))
	})

	g.DELETE("", func(c *gin.Context) {
		s := sessionFrom(c)
		if !editCart(c, log, func(l *cart.Ledger) error {
			return l.Clear(c.Request.Context())
		}) {
			return
		}
		c.JSON(http.StatusOK, viewCart(s.Cart))
	})
}

// editCart applies fn through the session's orchestrator, which refuses edits
// while a checkout is in flight. It reports whether the handler should go on
// to render the cart.
func editCart(c *gin.Context, log zerolog.Logger, fn func(*cart.Ledger) error) bool {
	err := sessionFrom(c).Checkout.EditCart(fn)
	switch {
	case err == nil:
		return true
	case errors.Is(err, checkout.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		return false
	default:
		return cartWriteError(c, log, err)
	}
}

// cartWriteError answers rule violations with 4xx. Storage failures leave the
// in-memory cart updated, so they are logged and the caller carries on;
// it returns true in that case.
func cartWriteError(c *gin.Context, log zerolog.Logger, err error) bool {
	switch {
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_quantity"})
	case errors.Is(err, cart.ErrOutOfStock):
		c.JSON(http.StatusConflict, gin.H{"error": "out_of_stock"})
	case errors.Is(err, cart.ErrInactiveProduct):
		c.JSON(http.StatusConflict, gin.H{"error": "product_unavailable"})
	default:
		log.Warn().Err(err).Str("session_id", sessionFrom(c).ID).Msg("cart not persisted")
		return true
	}
	return false
}

func writeCatalogError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
	case errors.Is(err, catalog.ErrAccessDenied):
		log.Error().Err(err).Msg("catalog access denied")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "access_denied", "detail": accessDeniedDetail})
	case errors.Is(err, catalog.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "product_exists"})
	default:
		log.Error().Err(err).Msg("catalog request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog_unavailable"})
	}
}
