package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/checkout"
	"github.com/mudichurmart/storefront/internal/idempotency"
	"github.com/mudichurmart/storefront/internal/media"
	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

// PaymentService backs the order-intent and verification endpoints.
type PaymentService interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*payment.GatewayOrder, error)
	VerifyPayment(ctx context.Context, orderID, paymentID, signature string) error
}

// IdempotencyStore guards order-intent creation against client retries.
type IdempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, reference string) (bool, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Catalog is the product service.
type Catalog interface {
	Create(ctx context.Context, in catalog.ProductInput) (*catalog.Product, error)
	Update(ctx context.Context, id string, in catalog.ProductInput) (*catalog.Product, error)
	SetImage(ctx context.Context, id, url string) (*catalog.Product, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*catalog.Product, error)
	List(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error)
	Subscribe() (<-chan catalog.Event, func())
}

// OrderStore is what the back office needs from the orders table.
type OrderStore interface {
	List(ctx context.Context) ([]orders.Order, error)
	Transition(ctx context.Context, orderID string, next orders.Status) (*orders.Order, error)
}

type ImageUploader interface {
	Upload(ctx context.Context, img media.Image, progress media.ProgressFunc) (string, error)
}

// Authenticator is the auth provider.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*auth.Tokens, error)
	SignUp(ctx context.Context, email, password string) (*auth.User, error)
	SignOut(ctx context.Context, accessToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

// CustomerDirectory lists shopper accounts for the back office.
type CustomerDirectory interface {
	ListCustomers(ctx context.Context, query string) ([]auth.Customer, error)
}

// HandlerConfig groups dependencies for the route groups.
type HandlerConfig struct {
	Payments    PaymentService
	Idempotency IdempotencyStore // optional
	Catalog     Catalog
	Sessions    *checkout.Registry
	Orders      OrderStore
	Media       ImageUploader
	Auth        Authenticator
	Customers   CustomerDirectory
	PaidEvents  checkout.EventPublisher // optional
	Logger      zerolog.Logger
}

// RegisterRoutes registers every API route group on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	RegisterPaymentRoutes(r, cfg)
	RegisterCartRoutes(r, cfg)
	RegisterCheckoutRoutes(r, cfg)
	RegisterProductRoutes(r, cfg)
	RegisterAuthRoutes(r, cfg)
	RegisterAdminRoutes(r, cfg)
}
