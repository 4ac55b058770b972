package orders

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid order status transition")

var allowedTransitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether an admin may move an order from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves an order to next if the table allows it. The write is
// conditional on the status that was read, so a concurrent change surfaces
// as ErrStatusMismatch. Moving a pending order to Paid records the payment
// as paid in the same write.
func (s *Store) Transition(ctx context.Context, orderID string, next Status) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	if !CanTransition(o.OrderStatus, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.OrderStatus, next)
	}

	var payment PaymentStatus
	if next == StatusPaid && o.PaymentStatus != PaymentPaid {
		payment = PaymentPaid
	}
	if err := s.updateStatus(ctx, orderID, o.OrderStatus, next, payment); err != nil {
		return nil, err
	}
	o.OrderStatus = next
	if payment != "" {
		o.PaymentStatus = payment
	}
	o.UpdatedAt = s.nowFunc().UTC()
	return o, nil
}
