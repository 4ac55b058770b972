package orders

import (
	"context"
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusDelivered, false},
		{StatusPaid, StatusDelivered, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPaid, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPaid, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransition(t *testing.T) {
	store := NewStore(newMockDynamo(), "orders")
	ctx := context.Background()
	if _, err := store.Create(ctx, sampleOrder("order-40")); err != nil {
		t.Fatalf("create: %v", err)
	}

	o, err := store.Transition(ctx, "order-40", StatusPaid)
	if err != nil {
		t.Fatalf("Pending -> Paid: %v", err)
	}
	if o.OrderStatus != StatusPaid {
		t.Fatalf("expected Paid, got %s", o.OrderStatus)
	}
	stored, err := store.Get(ctx, "order-40")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.OrderStatus != StatusPaid || stored.PaymentStatus != PaymentPaid {
		t.Fatalf("expected Paid/Paid after reconciliation, got %s/%s", stored.OrderStatus, stored.PaymentStatus)
	}

	if _, err := store.Transition(ctx, "order-40", StatusDelivered); err != nil {
		t.Fatalf("Paid -> Delivered: %v", err)
	}
	if _, err := store.Transition(ctx, "order-40", StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from Delivered, got %v", err)
	}
	if _, err := store.Transition(ctx, "missing", StatusPaid); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransition_CancelKeepsPaymentStatus(t *testing.T) {
	store := NewStore(newMockDynamo(), "orders")
	ctx := context.Background()
	if _, err := store.Create(ctx, sampleOrder("order-41")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Transition(ctx, "order-41", StatusCancelled); err != nil {
		t.Fatalf("Pending -> Cancelled: %v", err)
	}
	stored, err := store.Get(ctx, "order-41")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.OrderStatus != StatusCancelled || stored.PaymentStatus != PaymentPending {
		t.Fatalf("expected Cancelled/Pending, got %s/%s", stored.OrderStatus, stored.PaymentStatus)
	}
}
