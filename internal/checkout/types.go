package checkout

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

// Details are the delivery details submitted with the checkout form.
type Details struct {
	UserID  string `json:"userId,omitempty"`
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
	Email   string `json:"email,omitempty"`
}

// Prefill holds the contact fields the gateway UI shows pre-filled.
type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact"`
}

type Theme struct {
	Color string `json:"color"`
}

// GatewayRequest is everything the client needs to open the hosted payment UI.
type GatewayRequest struct {
	Key          string  `json:"key,omitempty"`
	AmountMinor  int64   `json:"amount"`
	Currency     string  `json:"currency"`
	IntentID     string  `json:"order_id,omitempty"`
	Reference    string  `json:"reference"`
	Verified     bool    `json:"verified"`
	MerchantName string  `json:"name"`
	Description  string  `json:"description"`
	Image        string  `json:"image,omitempty"`
	Prefill      Prefill `json:"prefill"`
	Theme        Theme   `json:"theme"`
}

// ResultKind tells which gateway callback fired.
type ResultKind string

const (
	ResultSuccess   ResultKind = "success"
	ResultFailure   ResultKind = "failure"
	ResultDismissed ResultKind = "dismissed"
)

// GatewayResult is the single callback a gateway session ends with.
// PaymentID is set on success; OrderID and Signature only when the session
// was opened against a server intent. Reason is set on failure.
type GatewayResult struct {
	Kind      ResultKind `json:"kind"`
	PaymentID string     `json:"paymentId,omitempty"`
	OrderID   string     `json:"orderId,omitempty"`
	Signature string     `json:"signature,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Outcome describes how a gateway session ended.
type Outcome struct {
	State     State      `json:"state"`
	Result    ResultKind `json:"result"`
	Reference string     `json:"reference,omitempty"`
	PaymentID string     `json:"paymentId,omitempty"`
	Verified  bool       `json:"verified"`
	Message   string     `json:"message"`
	Reason    string     `json:"reason,omitempty"`
}

// Snapshot is a read-only view of an orchestrator for display.
type Snapshot struct {
	State       State    `json:"state"`
	Reference   string   `json:"reference,omitempty"`
	Verified    bool     `json:"verified"`
	AmountMinor int64    `json:"amount,omitempty"`
	LastOutcome *Outcome `json:"lastOutcome,omitempty"`
}

// IntentCreator creates a server-side order intent for an amount in rupees.
type IntentCreator interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*payment.GatewayOrder, error)
}

// PaymentVerifier checks a gateway signature; nil means verified.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, orderID, paymentID, signature string) error
}

// OrderRecorder persists orders at the end of a checkout.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, o orders.Order) error
}

// EventPublisher announces confirmed orders.
type EventPublisher interface {
	PublishPaid(ctx context.Context, ev orders.PaidEvent) error
}

// Counter receives outcome counts.
type Counter interface {
	Incr(ctx context.Context, name string, dims map[string]string)
}
