package orders

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/mudichurmart/storefront/internal/aws"
	"github.com/mudichurmart/storefront/internal/idempotency"
)

// PaymentKey is the idempotency key that ties a gateway payment to the one
// order it may produce.
func PaymentKey(paymentID string) string {
	return "payment:" + paymentID
}

// Recorder stores checkout orders. When the order carries a payment id, the
// order and a payment idempotency record are written in one transaction so a
// replayed payment cannot produce a second order.
type Recorder struct {
	store *Store
	idem  *idempotency.Store
	log   zerolog.Logger
}

func NewRecorder(store *Store, idem *idempotency.Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: store, idem: idem, log: log}
}

func (r *Recorder) RecordOrder(ctx context.Context, o Order) error {
	if o.PaymentID == "" || r.idem == nil {
		_, err := r.store.Create(ctx, o)
		return err
	}

	rec := idempotency.NewRecord(PaymentKey(o.PaymentID), idempotency.StatusDone, o.OrderID, r.store.nowFunc().UTC(), r.idem.TTL())
	_, err := r.store.CreateWithIdempotencyTransaction(ctx, r.idem.Table(), rec, o, r.idem.TTL())
	if errors.Is(err, ErrDuplicate) {
		r.log.Warn().Str("order_id", o.OrderID).Str("payment_id", o.PaymentID).Msg("payment already recorded")
	}
	return err
}

// EventQueue publishes order events to SQS.
type EventQueue struct {
	pub *aws.Publisher
}

func NewEventQueue(pub *aws.Publisher) *EventQueue {
	return &EventQueue{pub: pub}
}

func (q *EventQueue) PublishPaid(ctx context.Context, ev PaidEvent) error {
	return q.pub.SendJSON(ctx, ev, map[string]string{
		"idempotency_key": ev.IdempotencyKey,
		"order_id":        ev.OrderID,
		"correlation_id":  ev.CorrelationID,
	})
}
