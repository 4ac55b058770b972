package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string
	RunLocal bool

	Tables struct {
		Products    string
		Orders      string
		Idempotency string
	}
	// ProductsStreamARN, when set, feeds the catalog push stream from the
	// products table's DynamoDB stream instead of this process's own writes.
	ProductsStreamARN  string
	StreamPollInterval time.Duration

	OrdersQueueURL string
	IdempotencyTTL time.Duration

	Redis struct {
		Addr     string
		Password string
		DB       int
		CartTTL  time.Duration
	}

	Sessions struct {
		IdleTTL time.Duration
		Max     int
	}

	Razorpay struct {
		KeyID     string
		KeySecret string
		APIURL    string
		Timeout   time.Duration
	}

	// PaymentsBackendURL points checkout at a remote payments API instead of
	// the in-process gateway client.
	PaymentsBackendURL string

	Checkout struct {
		MerchantName string
		Description  string
		ThemeColor   string
		LogoURL      string
	}

	Media struct {
		Bucket  string
		BaseURL string
	}

	Auth struct {
		CognitoClientID string
		UserPoolID      string
		AdminEmails     []string
	}

	MetricsNamespace string
}

// Load reads an optional .env file at path and then the process environment.
// Real environment variables win over the file.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "dev")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.RunLocal = getEnvBool("RUN_LOCAL", false)

	cfg.Tables.Products = getEnv("PRODUCTS_TABLE", "products")
	cfg.Tables.Orders = getEnv("ORDERS_TABLE", "orders")
	cfg.Tables.Idempotency = getEnv("IDEMPOTENCY_TABLE", "idempotency")
	cfg.ProductsStreamARN = os.Getenv("PRODUCTS_STREAM_ARN")
	cfg.StreamPollInterval = getEnvDuration("STREAM_POLL_INTERVAL", time.Second)
	cfg.OrdersQueueURL = os.Getenv("ORDERS_QUEUE_URL")
	cfg.IdempotencyTTL = getEnvDuration("IDEMPOTENCY_TTL", 48*time.Hour)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.CartTTL = getEnvDuration("CART_TTL", 30*24*time.Hour)

	cfg.Sessions.IdleTTL = getEnvDuration("SESSION_IDLE_TTL", 30*time.Minute)
	cfg.Sessions.Max = getEnvInt("MAX_SESSIONS", 10000)

	cfg.Razorpay.KeyID = os.Getenv("RAZORPAY_KEY_ID")
	cfg.Razorpay.KeySecret = os.Getenv("RAZORPAY_KEY_SECRET")
	cfg.Razorpay.APIURL = getEnv("RAZORPAY_API_URL", "https://api.razorpay.com")
	cfg.Razorpay.Timeout = getEnvDuration("RAZORPAY_TIMEOUT", 10*time.Second)

	cfg.PaymentsBackendURL = os.Getenv("PAYMENTS_BACKEND_URL")

	cfg.Checkout.MerchantName = getEnv("CHECKOUT_MERCHANT_NAME", "Mudichur Mart")
	cfg.Checkout.Description = getEnv("CHECKOUT_DESCRIPTION", "Purchase from Mudichur Mart")
	cfg.Checkout.ThemeColor = getEnv("CHECKOUT_THEME_COLOR", "#059669")
	cfg.Checkout.LogoURL = os.Getenv("CHECKOUT_LOGO_URL")

	cfg.Media.Bucket = os.Getenv("MEDIA_BUCKET")
	cfg.Media.BaseURL = os.Getenv("MEDIA_BASE_URL")

	cfg.Auth.CognitoClientID = os.Getenv("COGNITO_CLIENT_ID")
	cfg.Auth.UserPoolID = os.Getenv("COGNITO_USER_POOL_ID")
	cfg.Auth.AdminEmails = splitList(os.Getenv("ADMIN_EMAILS"))

	cfg.MetricsNamespace = getEnv("METRICS_NAMESPACE", "Storefront")

	return cfg, nil
}

// Validate reports settings the API cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Razorpay.KeySecret == "" && c.PaymentsBackendURL == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if c.Razorpay.KeyID == "" {
		missing = append(missing, "RAZORPAY_KEY_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}
