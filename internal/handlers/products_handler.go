package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mudichurmart/storefront/internal/catalog"
)

// RegisterProductRoutes registers the public catalog endpoints.
func RegisterProductRoutes(r *gin.Engine, cfg HandlerConfig) {
	log := cfg.Logger.With().Str("component", "products").Logger()

	g := r.Group("/api/products")

	g.GET("", func(c *gin.Context) {
		list, err := cfg.Catalog.List(c.Request.Context(), catalog.ListFilter{
			CategoryID: c.Query("category"),
			ActiveOnly: true,
		})
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		if list == nil {
			list = []catalog.Product{}
		}
		c.JSON(http.StatusOK, list)
	})

	// stream pushes catalog writes as server-sent events until the client goes away.
	g.GET("/stream", func(c *gin.Context) {
		events, cancel := cfg.Catalog.Subscribe()
		defer cancel()

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		done := c.Request.Context().Done()
		c.Stream(func(w io.Writer) bool {
			select {
			case <-done:
				return false
			case ev, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(string(ev.Type), ev.Product)
				return true
			}
		})
	})

	g.GET("/:id", func(c *gin.Context) {
		p, err := cfg.Catalog.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeCatalogError(c, log, err)
			return
		}
		if !p.Active {
			c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
			return
		}
		c.JSON(http.StatusOK, p)
	})
}
