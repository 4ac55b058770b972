package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mudichurmart/storefront/internal/cart"
	"github.com/mudichurmart/storefront/internal/orders"
	"github.com/mudichurmart/storefront/internal/payment"
)

var (
	ErrCheckoutInProgress = errors.New("checkout already in progress")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrNoGatewaySession   = errors.New("no open gateway session")
	ErrInvalidResult      = errors.New("invalid gateway result")
	// ErrIntentMismatch means the gateway reported a payment for a different
	// order than the one the session was opened with.
	ErrIntentMismatch = errors.New("payment is for a different order")
)

const (
	msgConfirmed          = "Payment successful. Your order has been placed."
	msgVerificationFailed = "Payment succeeded but could not be verified. Please contact support with your payment id."
	msgDismissed          = "Payment cancelled."
	msgFailed             = "Payment failed."
)

// Options shape the gateway request.
type Options struct {
	KeyID        string
	MerchantName string
	Description  string
	ThemeColor   string
	LogoURL      string
	Currency     string
	// SettleTimeout bounds verification and the order bookkeeping that
	// follows a gateway result. Those steps outlive the caller's request.
	SettleTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Currency == "" {
		o.Currency = payment.CurrencyINR
	}
	if o.ThemeColor == "" {
		o.ThemeColor = "#059669"
	}
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = 30 * time.Second
	}
	return o
}

// Deps are the collaborators of an Orchestrator. Orders, Events and Metrics
// are optional.
type Deps struct {
	Cart     *cart.Ledger
	Intents  IntentCreator
	Verifier PaymentVerifier
	Orders   OrderRecorder
	Events   EventPublisher
	Metrics  Counter
	Logger   zerolog.Logger
}

// Orchestrator drives one shopper's checkout from the submitted form to a
// terminal outcome. Submit is refused while a session is in flight, so a
// resubmitted form never creates a second intent.
type Orchestrator struct {
	mu   sync.Mutex
	deps Deps
	opts Options

	newLocalID func() string
	nowFunc    func() time.Time

	state       State
	intent      Intent
	amount      decimal.Decimal
	amountMinor int64
	details     Details
	lines       []cart.LineItem
	last        *Outcome
}

func New(deps Deps, opts Options) *Orchestrator {
	return &Orchestrator{
		deps:       deps,
		opts:       opts.withDefaults(),
		newLocalID: NewLocalID,
		nowFunc:    time.Now,
		state:      Idle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{State: o.state, AmountMinor: o.amountMinor}
	if o.intent != nil {
		s.Reference = o.intent.Reference()
		_, s.Verified = o.intent.(Verified)
	}
	if o.last != nil {
		out := *o.last
		s.LastOutcome = &out
	}
	return s
}

// Reset returns a finished orchestrator to Idle. Resetting Idle is a no-op;
// resetting a session in flight fails with ErrCheckoutInProgress.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Accepting() {
		return ErrCheckoutInProgress
	}
	o.toIdle()
	return nil
}

func (o *Orchestrator) toIdle() {
	o.state = Idle
	o.intent = nil
	o.amount = decimal.Zero
	o.amountMinor = 0
	o.details = Details{}
	o.lines = nil
}

// EditCart runs fn against the cart unless a checkout is in flight. Submit
// snapshots the cart under the same lock, so an edit lands wholly before the
// snapshot or is refused with ErrCheckoutInProgress.
func (o *Orchestrator) EditCart(fn func(*cart.Ledger) error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.state.Accepting() {
		return ErrCheckoutInProgress
	}
	return fn(o.deps.Cart)
}

// Submit starts a checkout for the current cart. It asks for a server intent
// and falls back to a local tracking id when that fails, so it always ends in
// GatewayOpened unless it is refused up front.
func (o *Orchestrator) Submit(ctx context.Context, d Details) (*GatewayRequest, error) {
	o.mu.Lock()
	if !o.state.Accepting() {
		o.mu.Unlock()
		return nil, ErrCheckoutInProgress
	}
	lines := o.deps.Cart.Items()
	if len(lines) == 0 {
		o.mu.Unlock()
		return nil, ErrEmptyCart
	}
	o.toIdle()
	o.last = nil
	o.lines = lines
	o.details = d
	o.amount = cart.Total(lines)
	o.amountMinor = payment.ToMinorUnits(o.amount)
	o.state = OrderIntentRequested
	amount := o.amount
	o.mu.Unlock()

	intent := o.requestIntent(ctx, amount)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.intent = intent
	if _, ok := intent.(Verified); ok {
		o.state = IntentCreated
	} else {
		o.state = FallbackIntent
	}
	req := o.gatewayRequest()
	o.state = GatewayOpened

	o.deps.Logger.Info().
		Str("reference", req.Reference).
		Bool("verified", req.Verified).
		Int64("amount_minor", req.AmountMinor).
		Msg("gateway session opened")
	return &req, nil
}

func (o *Orchestrator) requestIntent(ctx context.Context, amount decimal.Decimal) Intent {
	if o.deps.Intents != nil {
		gw, err := o.deps.Intents.CreateIntent(ctx, amount, o.opts.Currency)
		if err == nil && gw != nil && gw.ID != "" {
			return Verified{IntentID: gw.ID}
		}
		if err == nil {
			err = errors.New("intent has no id")
		}
		o.deps.Logger.Warn().Err(err).Msg("order intent unavailable, continuing with local tracking id")
	}
	return Unverified{LocalID: o.newLocalID()}
}

func (o *Orchestrator) gatewayRequest() GatewayRequest {
	req := GatewayRequest{
		Key:          o.opts.KeyID,
		AmountMinor:  o.amountMinor,
		Currency:     o.opts.Currency,
		Reference:    o.intent.Reference(),
		MerchantName: o.opts.MerchantName,
		Description:  o.opts.Description,
		Image:        o.opts.LogoURL,
		Prefill: Prefill{
			Name:    o.details.Name,
			Email:   o.details.Email,
			Contact: o.details.Mobile,
		},
		Theme: Theme{Color: o.opts.ThemeColor},
	}
	if v, ok := o.intent.(Verified); ok {
		req.IntentID = v.IntentID
		req.Verified = true
	}
	return req
}

// Complete consumes the gateway result of the open session. It accepts
// exactly one result per session; later calls get ErrNoGatewaySession.
//
// Verification and the bookkeeping after it each run on a context detached
// from ctx and bounded by SettleTimeout. Cancelling ctx aborts neither.
func (o *Orchestrator) Complete(ctx context.Context, r GatewayResult) (*Outcome, error) {
	base := context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(base, o.opts.SettleTimeout)
	defer cancel()

	o.mu.Lock()
	if o.state != GatewayOpened {
		o.mu.Unlock()
		return nil, ErrNoGatewaySession
	}

	switch r.Kind {
	case ResultDismissed:
		out := o.finishIdle(Outcome{Result: ResultDismissed, Message: msgDismissed})
		o.mu.Unlock()
		o.count(ctx, out)
		return out, nil

	case ResultFailure:
		out := o.finishIdle(Outcome{Result: ResultFailure, Message: msgFailed, Reason: r.Reason})
		o.mu.Unlock()
		o.count(ctx, out)
		return out, nil

	case ResultSuccess:
		if r.PaymentID == "" {
			o.mu.Unlock()
			return nil, fmt.Errorf("%w: success without payment id", ErrInvalidResult)
		}
	default:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidResult, r.Kind)
	}

	var verr error
	verified, isVerified := o.intent.(Verified)
	if isVerified {
		o.state = VerificationRequested
		o.mu.Unlock()
		verr = o.verify(ctx, verified, r)
		o.mu.Lock()

		var settle context.CancelFunc
		ctx, settle = context.WithTimeout(base, o.opts.SettleTimeout)
		defer settle()
	}
	defer o.mu.Unlock()

	var out *Outcome
	if verr != nil {
		o.deps.Logger.Warn().Err(verr).
			Str("reference", verified.IntentID).
			Str("payment_id", r.PaymentID).
			Msg("payment verification failed")
		out = o.fail(ctx, r)
	} else {
		out = o.confirm(ctx, r, isVerified)
	}
	o.count(ctx, out)
	return out, nil
}

func (o *Orchestrator) verify(ctx context.Context, in Verified, r GatewayResult) error {
	orderID := r.OrderID
	if orderID == "" {
		orderID = in.IntentID
	}
	if orderID != in.IntentID {
		return fmt.Errorf("%w: got %s, opened %s", ErrIntentMismatch, orderID, in.IntentID)
	}
	if o.deps.Verifier == nil {
		return errors.New("no payment verifier configured")
	}
	return o.deps.Verifier.VerifyPayment(ctx, orderID, r.PaymentID, r.Signature)
}

func (o *Orchestrator) finishIdle(out Outcome) *Outcome {
	out.State = Idle
	if o.intent != nil {
		out.Reference = o.intent.Reference()
	}
	o.toIdle()
	o.last = &out
	return &out
}

// confirm must be called with o.mu held.
func (o *Orchestrator) confirm(ctx context.Context, r GatewayResult, verified bool) *Outcome {
	o.state = Confirmed
	ref := o.intent.Reference()
	out := &Outcome{
		State:     Confirmed,
		Result:    ResultSuccess,
		Reference: ref,
		PaymentID: r.PaymentID,
		Verified:  verified,
		Message:   msgConfirmed,
	}
	o.last = out

	if err := o.deps.Cart.Clear(ctx); err != nil {
		o.deps.Logger.Error().Err(err).Str("reference", ref).Msg("clear cart after confirmation")
	}

	order := o.order(r.PaymentID, orders.PaymentPaid, orders.StatusPaid, verified)
	if o.record(ctx, order) && o.deps.Events != nil {
		ev := orders.PaidEvent{
			OrderID:        order.OrderID,
			IdempotencyKey: orders.StockKey(order.OrderID),
			CorrelationID:  r.PaymentID,
		}
		if err := o.deps.Events.PublishPaid(ctx, ev); err != nil {
			o.deps.Logger.Error().Err(err).Str("order_id", order.OrderID).Msg("publish order paid event")
		}
	}
	return out
}

// fail must be called with o.mu held. The cart is kept and the order is
// stored as pending so support can reconcile it.
func (o *Orchestrator) fail(ctx context.Context, r GatewayResult) *Outcome {
	o.state = VerificationFailed
	out := &Outcome{
		State:     VerificationFailed,
		Result:    ResultSuccess,
		Reference: o.intent.Reference(),
		PaymentID: r.PaymentID,
		Verified:  false,
		Message:   msgVerificationFailed,
	}
	o.last = out

	o.record(ctx, o.order(r.PaymentID, orders.PaymentPending, orders.StatusPending, false))
	return out
}

func (o *Orchestrator) order(paymentID string, ps orders.PaymentStatus, st orders.Status, verified bool) orders.Order {
	items := make([]orders.Item, 0, len(o.lines))
	for _, li := range o.lines {
		items = append(items, orders.Item{
			ProductID: li.Product.ID,
			Name:      li.Product.Name,
			UnitPrice: li.UnitPrice().Round(2).InexactFloat64(),
			Quantity:  li.Quantity,
			ImageURL:  li.Product.ImageURL,
		})
	}
	ord := orders.Order{
		OrderID:       o.intent.Reference(),
		UserID:        o.details.UserID,
		Items:         items,
		TotalAmount:   o.amount.Round(2).InexactFloat64(),
		PaymentStatus: ps,
		OrderStatus:   st,
		PaymentID:     paymentID,
		Verified:      verified,
		Customer: orders.Customer{
			Name:    o.details.Name,
			Mobile:  o.details.Mobile,
			Address: o.details.Address,
			Email:   o.details.Email,
		},
		CreatedAt: o.nowFunc().UTC(),
	}
	if v, ok := o.intent.(Verified); ok {
		ord.GatewayOrderID = v.IntentID
	}
	return ord
}

func (o *Orchestrator) record(ctx context.Context, ord orders.Order) bool {
	if o.deps.Orders == nil {
		return false
	}
	if err := o.deps.Orders.RecordOrder(ctx, ord); err != nil {
		o.deps.Logger.Error().Err(err).
			Str("order_id", ord.OrderID).
			Str("payment_status", string(ord.PaymentStatus)).
			Msg("record order")
		return false
	}
	return true
}

func (o *Orchestrator) count(ctx context.Context, out *Outcome) {
	if o.deps.Metrics == nil {
		return
	}
	o.deps.Metrics.Incr(ctx, "CheckoutOutcome", map[string]string{
		"State":    out.State.String(),
		"Verified": strconv.FormatBool(out.Verified),
	})
}
