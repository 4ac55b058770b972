package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/validation"
)

var statusByCategory = map[auth.Category]int{
	auth.InvalidCredentials: http.StatusUnauthorized,
	auth.Unauthenticated:    http.StatusUnauthorized,
	auth.RateLimited:        http.StatusTooManyRequests,
	auth.Network:            http.StatusBadGateway,
	auth.EmailInUse:         http.StatusConflict,
	auth.WeakPassword:       http.StatusBadRequest,
	auth.Unknown:            http.StatusInternalServerError,
}

func writeAuthError(c *gin.Context, err error) {
	cat := auth.Classify(err)
	status, ok := statusByCategory[cat]
	if !ok {
		status = http.StatusInternalServerError
	}
	ae := &auth.Error{Category: cat}
	c.JSON(status, gin.H{"error": string(cat), "message": ae.Message()})
}

// RegisterAuthRoutes registers sign-in, sign-up and session endpoints.
func RegisterAuthRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	g := r.Group("/api/auth")

	g.POST("/signin", func(c *gin.Context) {
		var req validation.CredentialsRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		tok, err := cfg.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(c, err)
			return
		}
		c.JSON(http.StatusOK, tok)
	})

	g.POST("/signup", func(c *gin.Context) {
		var req validation.CredentialsRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}
		u, err := cfg.Auth.SignUp(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	})

	g.POST("/signout", requireUser(cfg.Auth), func(c *gin.Context) {
		if err := cfg.Auth.SignOut(c.Request.Context(), c.GetString(ctxToken)); err != nil {
			writeAuthError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})

	g.GET("/me", requireUser(cfg.Auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, userFrom(c))
	})
}
