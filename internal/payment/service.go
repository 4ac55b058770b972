package payment

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// OrderCreator creates orders on the payment gateway.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
}

// Service is the server side of the two payment endpoints.
type Service struct {
	gateway  OrderCreator
	verifier *Verifier
	nowFunc  func() time.Time
}

func NewService(gateway OrderCreator, verifier *Verifier) *Service {
	return &Service{
		gateway:  gateway,
		verifier: verifier,
		nowFunc:  time.Now,
	}
}

// CreateIntent converts amount (rupees) to paise and opens a gateway order.
// An empty currency means INR.
func (s *Service) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*GatewayOrder, error) {
	if currency == "" {
		currency = CurrencyINR
	}
	if currency != CurrencyINR {
		return nil, ErrUnsupportedCurrency
	}
	paise := ToMinorUnits(amount)
	if !amount.IsPositive() || paise <= 0 {
		return nil, ErrInvalidAmount
	}

	return s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:         paise,
		Currency:       currency,
		Receipt:        s.receipt(),
		PaymentCapture: 1,
	})
}

// VerifyPayment checks the gateway signature for an order/payment pair.
func (s *Service) VerifyPayment(_ context.Context, orderID, paymentID, signature string) error {
	return s.verifier.Verify(orderID, paymentID, signature)
}

func (s *Service) receipt() string {
	ms := strconv.FormatInt(s.nowFunc().UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	return "rcpt_" + ms
}
