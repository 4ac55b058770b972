package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/idempotency"
	"github.com/mudichurmart/storefront/internal/payment"
	"github.com/mudichurmart/storefront/internal/validation"
)

const headerIdempotencyKey = "Idempotency-Key"

// intentKey namespaces client idempotency keys in the shared table.
func intentKey(k string) string { return "intent:" + k }

// RegisterPaymentRoutes registers the order-intent and verification endpoints.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	log := cfg.Logger.With().Str("component", "payments").Logger()

	g := r.Group("/api/payments")

	g.POST("/order-intents", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.IntentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		// Idempotency-Key is optional here: without it every call opens a
		// fresh gateway order.
		key := c.GetHeader(headerIdempotencyKey)
		if key != "" && cfg.Idempotency != nil {
			key = intentKey(key)
			if done := claimIntentKey(ctx, c, cfg.Idempotency, key); done {
				return
			}
		} else {
			key = ""
		}

		gw, err := cfg.Payments.CreateIntent(ctx, decimal.NewFromFloat(req.Amount), req.Currency)
		if err != nil {
			if key != "" {
				if merr := cfg.Idempotency.MarkFailed(ctx, key, fmt.Sprintf("create_intent_failed: %v", err)); merr != nil {
					log.Warn().Err(merr).Str("idempotency_key", key).Msg("mark failed")
				}
			}
			if errors.Is(err, payment.ErrInvalidAmount) || errors.Is(err, payment.ErrUnsupportedCurrency) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_amount"})
				return
			}
			log.Error().Err(err).Float64("amount", req.Amount).Msg("gateway order creation failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could_not_create_payment_order"})
			return
		}

		body, err := json.Marshal(gw)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could_not_create_payment_order"})
			return
		}
		if key != "" {
			if err := cfg.Idempotency.MarkDone(ctx, key, string(body), http.StatusOK); err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("mark done")
			}
		}
		c.Data(http.StatusOK, "application/json", body)
	})

	g.POST("/verify", func(c *gin.Context) {
		var req validation.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, payment.VerifyResponse{Status: payment.VerifyStatusFailure, Message: "Missing required parameters"})
			return
		}

		err := cfg.Payments.VerifyPayment(c.Request.Context(), req.OrderID, req.PaymentID, req.Signature)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, payment.VerifyResponse{Status: payment.VerifyStatusSuccess, Message: "Payment verified successfully"})
		case errors.Is(err, payment.ErrMissingParameters):
			c.JSON(http.StatusBadRequest, payment.VerifyResponse{Status: payment.VerifyStatusFailure, Message: "Missing required parameters"})
		case errors.Is(err, payment.ErrSignatureMismatch):
			log.Warn().Str("order_id", req.OrderID).Str("payment_id", req.PaymentID).Msg("signature mismatch")
			c.JSON(http.StatusBadRequest, payment.VerifyResponse{Status: payment.VerifyStatusFailure, Message: "Invalid payment signature"})
		default:
			log.Error().Err(err).Msg("verification failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "verification_failed"})
		}
	})
}

// claimIntentKey takes ownership of key for this request. When the key was
// seen before it writes the response (stored replay, 409 or 500) and reports
// true so the caller stops.
func claimIntentKey(ctx context.Context, c *gin.Context, store IdempotencyStore, key string) bool {
	created, err := store.CreateIfNotExists(ctx, key, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return true
	}
	if created {
		return false
	}

	rec, err := store.Get(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
		return true
	}
	if rec == nil {
		// expired between the two calls
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
		return true
	}

	switch rec.Status {
	case idempotency.StatusDone:
		replay(c, rec)
		return true
	case idempotency.StatusInProgress:
		c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
		return true
	case idempotency.StatusFailed:
		ok, err := store.Reclaim(ctx, key)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return true
		}
		if !ok {
			c.JSON(http.StatusConflict, gin.H{"error": "request_in_progress"})
			return true
		}
		return false
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown_idempotency_status"})
		return true
	}
}

func replay(c *gin.Context, rec *idempotency.Record) {
	status := rec.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	if rec.ResponseBody != "" && json.Valid([]byte(rec.ResponseBody)) {
		c.Header("Idempotent-Replay", "true")
		c.Data(status, "application/json", []byte(rec.ResponseBody))
		return
	}
	c.JSON(status, gin.H{"response": rec.ResponseBody})
}
