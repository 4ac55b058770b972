package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mudichurmart/storefront/internal/auth"
	"github.com/mudichurmart/storefront/internal/aws"
	"github.com/mudichurmart/storefront/internal/cart"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/checkout"
	"github.com/mudichurmart/storefront/internal/config"
	"github.com/mudichurmart/storefront/internal/handlers"
	"github.com/mudichurmart/storefront/internal/idempotency"
	"github.com/mudichurmart/storefront/internal/logger"
	"github.com/mudichurmart/storefront/internal/media"
	"github.com/mudichurmart/storefront/internal/metrics"
	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(cfg.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterRoutes(r, cfg)

	return r
}

// cartStorage prefers Redis and falls back to process memory when it is
// unreachable at start-up.
func cartStorage(ctx context.Context, cfg *config.Config, lg zerolog.Logger) cart.Storage {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, carts will not survive restarts")
		_ = client.Close()
		return cart.NewMemoryStorage()
	}
	return cart.NewRedisStorage(client, cfg.Redis.CartTTL)
}

// catalogService follows the products table's stream when one is configured,
// so the push stream also carries writes made by other processes.
func catalogService(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, lg zerolog.Logger) *catalog.Service {
	store := catalog.NewStore(clients.DynamoDB, cfg.Tables.Products)
	broker := catalog.NewBroker(0)
	if cfg.ProductsStreamARN == "" {
		lg.Warn().Msg("PRODUCTS_STREAM_ARN not set, product updates are pushed from this process only")
		return catalog.NewService(store, broker, lg)
	}

	feed := catalog.NewStreamFeed(clients.Streams, cfg.ProductsStreamARN, broker, cfg.StreamPollInterval, lg)
	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error().Err(err).Msg("products stream feed stopped")
		}
	}()
	return catalog.NewService(store, broker, lg, catalog.WithStreamFeed())
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	lg := logger.New(logger.Options{
		Service: "storefront-api",
		Env:     cfg.AppEnv,
		Level:   cfg.LogLevel,
		Pretty:  cfg.RunLocal,
	})
	if err := cfg.Validate(); err != nil {
		lg.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		lg.Fatal().Err(err).Msg("init aws clients")
	}

	idemStore := idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.IdempotencyTTL)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.Tables.Orders)
	recorder := orders.NewRecorder(orderStore, idemStore, lg)
	products := catalogService(ctx, cfg, clients, lg)
	counter := metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, lg)

	payments := payment.NewService(
		payment.NewGatewayClient(cfg.Razorpay.APIURL, cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout),
		payment.NewVerifier(cfg.Razorpay.KeySecret),
	)
	var (
		intents  checkout.IntentCreator   = payments
		verifier checkout.PaymentVerifier = payments
	)
	if cfg.PaymentsBackendURL != "" {
		backend := payment.NewHTTPBackend(cfg.PaymentsBackendURL, cfg.Razorpay.Timeout)
		intents, verifier = backend, backend
		lg.Info().Str("url", cfg.PaymentsBackendURL).Msg("checkout uses remote payments backend")
	}

	var paid checkout.EventPublisher
	if cfg.OrdersQueueURL != "" {
		paid = orders.NewEventQueue(aws.NewPublisher(clients.SQS, cfg.OrdersQueueURL))
	} else {
		lg.Warn().Msg("ORDERS_QUEUE_URL not set, stock will not be reserved for paid orders")
	}

	carts := cartStorage(ctx, cfg, lg)
	opts := checkout.Options{
		KeyID:        cfg.Razorpay.KeyID,
		MerchantName: cfg.Checkout.MerchantName,
		Description:  cfg.Checkout.Description,
		ThemeColor:   cfg.Checkout.ThemeColor,
		LogoURL:      cfg.Checkout.LogoURL,
	}
	sessions := checkout.NewRegistry(func(ctx context.Context, id string) (*checkout.Session, error) {
		sl := lg.With().Str("session_id", id).Logger()
		ledger := cart.Open(ctx, carts, id, sl)
		return &checkout.Session{
			ID:   id,
			Cart: ledger,
			Checkout: checkout.New(checkout.Deps{
				Cart:     ledger,
				Intents:  intents,
				Verifier: verifier,
				Orders:   recorder,
				Events:   paid,
				Metrics:  counter,
				Logger:   sl,
			}, opts),
		}, nil
	}, checkout.Limits{IdleTTL: cfg.Sessions.IdleTTL, MaxSessions: cfg.Sessions.Max})

	r := setupRouter(handlers.HandlerConfig{
		Payments:    payments,
		Idempotency: idemStore,
		Catalog:     products,
		Sessions:    sessions,
		Orders:      orderStore,
		Media:       media.NewUploader(clients.S3, cfg.Media.Bucket, cfg.Media.BaseURL),
		Auth:        auth.NewService(clients.Cognito, cfg.Auth.CognitoClientID, cfg.Auth.AdminEmails),
		Customers:   auth.NewDirectory(clients.Cognito, cfg.Auth.UserPoolID),
		PaidEvents:  paid,
		Logger:      lg,
	})

	// RUN_LOCAL serves plain HTTP for development instead of the Lambda adapter.
	if cfg.RunLocal {
		lg.Info().Str("addr", cfg.HTTPAddr).Msg("running local server")
		if err := r.Run(cfg.HTTPAddr); err != nil {
			lg.Fatal().Err(err).Msg("local server stopped")
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
