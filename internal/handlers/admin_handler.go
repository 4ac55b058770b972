package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/media"
	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/validation"
)

const accessDeniedDetail = "the store rejected the request; check credentials and table configuration"

// RegisterAdminRoutes registers the back-office endpoints. Every route needs
// an admin bearer token.
func RegisterAdminRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Logger.With().Str("component", "admin").Logger()

	g := r.Group("/api/admin", requireAdmin(cfg.Auth))

	g.GET("/products", func(c *gin.Context) {
		list, err := cfg.Catalog.List(c.Request.Context(), catalog.ListFilter{CategoryID: c.Query("category")})
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		if list == nil {
			list = []catalog.Product{}
		}
		c.JSON(http.StatusOK, list)
	})

	g.POST("/products", func(c *gin.Context) {
		var in catalog.ProductInput
		if err := validation.BindAndValidate(c, &in, v); err != nil {
			return
		}
		p, err := cfg.Catalog.Create(c.Request.Context(), in)
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		c.Header("Location", "/api/products/"+p.ID)
		c.JSON(http.StatusCreated, p)
	})

	g.PUT("/products/:id", func(c *gin.Context) {
		var in catalog.ProductInput
		if err := validation.BindAndValidate(c, &in, v); err != nil {
			return
		}
		p, err := cfg.Catalog.Update(c.Request.Context(), c.Param("id"), in)
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	g.DELETE("/products/:id", func(c *gin.Context) {
		if err := cfg.Catalog.Delete(c.Request.Context(), c.Param("id")); err != nil {
			writeCatalogError(c, log, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.POST("/products/:id/image", func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		if _, err := cfg.Catalog.Get(ctx, id); err != nil {
			writeCatalogError(c, log, err)
			return
		}

		fh, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_image"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable_image"})
			return
		}
		defer f.Close()

		url, err := cfg.Media.Upload(ctx, media.Image{
			ProductID:   id,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		}, func(pct int) {
			log.Debug().Str("product_id", id).Int("pct", pct).Msg("image upload progress")
		})
		switch {
		case errors.Is(err, media.ErrTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image_too_large"})
			return
		case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrEmpty):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image", "msg": err.Error()})
			return
		case err != nil:
			log.Error().Err(err).Str("product_id", id).Msg("image upload failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upload_failed"})
			return
		}

		p, err := cfg.Catalog.SetImage(ctx, id, url)
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	g.GET("/orders", func(c *gin.Context) {
		list, err := cfg.Orders.List(c.Request.Context())
		if err != nil {
			writeOrdersError(c, log, err)
			return
		}
		if list == nil {
			list = []orders.Order{}
		}
		c.JSON(http.StatusOK, list)
	})

	g.PATCH("/orders/:id/status", func(c *gin.Context) {
		var req validation.OrderStatusRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		ctx := c.Request.Context()
		o, err := cfg.Orders.Transition(ctx, c.Param("id"), orders.Status(req.Status))
		if err != nil {
			writeOrdersError(c, log, err)
			return
		}
		// a reconciled order reserves stock like a checkout-confirmed one
		if o.OrderStatus == orders.StatusPaid && cfg.PaidEvents != nil {
			ev := orders.PaidEvent{OrderID: o.OrderID, IdempotencyKey: orders.StockKey(o.OrderID), CorrelationID: o.PaymentID}
			if err := cfg.PaidEvents.PublishPaid(ctx, ev); err != nil {
				log.Error().Err(err).Str("order_id", o.OrderID).Msg("publish order paid event")
			}
		}
		c.JSON(http.StatusOK, o)
	})

	g.GET("/users", func(c *gin.Context) {
		list, err := cfg.Customers.ListCustomers(c.Request.Context(), c.Query("q"))
		switch {
		case errors.Is(err, auth.ErrNoUserPool):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory_unavailable"})
			return
		case err != nil:
			log.Error().Err(err).Msg("list customers")
			writeAuthError(c, err)
			return
		}
		if list == nil {
			list = []auth.Customer{}
		}
		c.JSON(http.StatusOK, list)
	})

	g.GET("/stats", func(c *gin.Context) {
		var (
			orderList []orders.Order
			products  []catalog.Product
		)
		eg, ctx := errgroup.WithContext(c.Request.Context())
		eg.Go(func() error {
			var err error
			orderList, err = cfg.Orders.List(ctx)
			return err
		})
		eg.Go(func() error {
			var err error
			products, err = cfg.Catalog.List(ctx, catalog.ListFilter{})
			return err
		})
		if err := eg.Wait(); err != nil {
			if errors.Is(err, catalog.ErrAccessDenied) {
				writeCatalogError(c, log, err)
				return
			}
			writeOrdersError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, orders.Summarize(orderList, products))
	})
}

func writeOrdersError(c *gin.Context, log zerolog.Logger, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "msg": err.Error()})
	case errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "status_changed"})
	case errors.Is(err, orders.ErrAccessDenied):
		log.Error().Err(err).Msg("orders access denied")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "access_denied", "detail": accessDeniedDetail})
	default:
		log.Error().Err(err).Msg("orders request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "orders_unavailable"})
	}
}
