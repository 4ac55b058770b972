package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

const testSecret = "test_secret"

type fakeIntents struct {
	mu      sync.Mutex
	id      string
	err     error
	calls   int
	amounts []decimal.Decimal
	// entered is signalled when CreateIntent starts; release unblocks it.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeIntents) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*payment.GatewayOrder, error) {
	f.mu.Lock()
	f.calls++
	f.amounts = append(f.amounts, amount)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return &payment.GatewayOrder{ID: f.id, Amount: payment.ToMinorUnits(amount), Currency: currency}, nil
}

func (f *fakeIntents) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type signatureVerifier struct {
	v *payment.Verifier
}

func (s signatureVerifier) VerifyPayment(_ context.Context, orderID, paymentID, signature string) error {
	return s.v.Verify(orderID, paymentID, signature)
}

type fakeRecorder struct {
	mu     sync.Mutex
	orders []orders.Order
	err    error
}

func (f *fakeRecorder) RecordOrder(ctx context.Context, o orders.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, o)
	return nil
}

type fakeEvents struct {
	events []orders.PaidEvent
	err    error
}

func (f *fakeEvents) PublishPaid(ctx context.Context, ev orders.PaidEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type fakeCounter struct {
	names []string
	dims  []map[string]string
}

func (f *fakeCounter) Incr(_ context.Context, name string, dims map[string]string) {
	f.names = append(f.names, name)
	f.dims = append(f.dims, dims)
}

var errBackendDown = errors.New("connection refused")
