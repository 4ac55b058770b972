package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrVerificationRejected is returned by HTTPBackend when the verify endpoint
// answers with a failure status.
var ErrVerificationRejected = errors.New("payment verification rejected")

// IntentPayload is the JSON body of the order-intent endpoint.
type IntentPayload struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

// VerifyPayload is the JSON body of the verification endpoint.
type VerifyPayload struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// VerifyResponse is the verification endpoint's answer.
type VerifyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	VerifyStatusSuccess = "success"
	VerifyStatusFailure = "failure"
)

// HTTPBackend calls a remote storefront API for intent creation and
// verification, for deployments where checkout runs apart from the payment
// endpoints.
type HTTPBackend struct {
	baseURL string
	http    *http.Client
}

func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*GatewayOrder, error) {
	payload := IntentPayload{Amount: amount.InexactFloat64(), Currency: currency}

	var order GatewayOrder
	status, err := b.post(ctx, "/api/payments/order-intents", payload, &order)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 {
		return nil, fmt.Errorf("order intent endpoint returned %d", status)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("order intent has no id")
	}
	return &order, nil
}

func (b *HTTPBackend) VerifyPayment(ctx context.Context, orderID, paymentID, signature string) error {
	payload := VerifyPayload{OrderID: orderID, PaymentID: paymentID, Signature: signature}

	var resp VerifyResponse
	status, err := b.post(ctx, "/api/payments/verify", payload, &resp)
	if err != nil {
		return err
	}
	if status/100 == 2 && resp.Status == VerifyStatusSuccess {
		return nil
	}
	return fmt.Errorf("%w: %d %s", ErrVerificationRejected, status, resp.Message)
}

func (b *HTTPBackend) post(ctx context.Context, path string, in, out interface{}) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read %s response: %w", path, err)
	}
	if len(raw) > 0 {
		// Error bodies may not match out; only 2xx decoding failures matter.
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode/100 == 2 {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return resp.StatusCode, nil
}
