package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GatewayOrder is a gateway-side order that a payment will be correlated with.
type GatewayOrder struct {
	ID       string `json:"id"`
	Entity   string `json:"entity,omitempty"`
	Amount   int64  `json:"amount"` // paise
	Currency string `json:"currency"`
	Receipt  string `json:"receipt,omitempty"`
	Status   string `json:"status,omitempty"`
}

// OrderRequest is the body of a gateway order creation.
type OrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	PaymentCapture int    `json:"payment_capture"`
}

// GatewayError is a non-2xx answer from the gateway API.
type GatewayError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway returned %d %s: %s", e.StatusCode, e.Code, e.Description)
}

// GatewayClient talks to a Razorpay-compatible orders API.
type GatewayClient struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

func NewGatewayClient(baseURL, keyID, keySecret string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: timeout},
	}
}

// CreateOrder registers an order with the gateway and returns it.
func (c *GatewayClient) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build order request: %w", err)
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("create gateway order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var envelope struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return nil, &GatewayError{
			StatusCode:  resp.StatusCode,
			Code:        envelope.Error.Code,
			Description: envelope.Error.Description,
		}
	}

	var order GatewayOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode gateway order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("gateway order has no id")
	}
	return &order, nil
}
