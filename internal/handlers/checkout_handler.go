package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mudichurmart/storefront/internal/checkout"
	"github.com/mudichurmart/storefront/internal/validation"
)

// RegisterCheckoutRoutes registers the checkout session endpoints.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()

	g := r.Group("/api/checkout", withSession(cfg.Sessions), optionalUser(cfg.Auth))

	g.GET("", func(c *gin.Context) {
		c.JSON(http.StatusOK, sessionFrom(c).Checkout.Snapshot())
	})

	g.POST("", func(c *gin.Context) {
		var req validation.CheckoutRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		d := checkout.Details{
			Name:    req.Name,
			Mobile:  req.Mobile,
			Address: req.Address,
			Email:   req.Email,
		}
		if u := userFrom(c); u != nil {
			d.UserID = u.ID
			if d.Email == "" {
				d.Email = u.Email
			}
		}

		gr, err := sessionFrom(c).Checkout.Submit(c.Request.Context(), d)
		switch {
		case errors.Is(err, checkout.ErrCheckoutInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
		case errors.Is(err, checkout.ErrEmptyCart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart"})
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout_failed"})
		default:
			c.JSON(http.StatusOK, gr)
		}
	})

	g.POST("/result", func(c *gin.Context) {
		var req validation.GatewayResultRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		out, err := sessionFrom(c).Checkout.Complete(c.Request.Context(), checkout.GatewayResult{
			Kind:      checkout.ResultKind(req.Kind),
			PaymentID: req.PaymentID,
			OrderID:   req.OrderID,
			Signature: req.Signature,
			Reason:    req.Reason,
		})
		switch {
		case errors.Is(err, checkout.ErrNoGatewaySession):
			c.JSON(http.StatusConflict, gin.H{"error": "no_gateway_session"})
		case errors.Is(err, checkout.ErrInvalidResult):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_result", "msg": err.Error()})
		case err != nil:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "checkout_failed"})
		default:
			c.JSON(http.StatusOK, out)
		}
	})

	g.DELETE("", func(c *gin.Context) {
		if err := sessionFrom(c).Checkout.Reset(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "checkout_in_progress"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}
