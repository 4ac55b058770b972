package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mudichurmart/storefront/internal/aws"
	"github.com/mudichurmart/storefront/internal/catalog"
	"github.com/mudichurmart/storefront/internal/idempotency"
	"github.com/mudichurmart/storefront/internal/metrics"
	"github.com/mudichurmart/storefront/internal/orders"
)

// maxParallelDecrements bounds concurrent stock writes per order.
const maxParallelDecrements = 4

var errClaimHeld = errors.New("idempotency key is held by another worker")

type orderReader interface {
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	IncrementAttempts(ctx context.Context, orderID string) error
}

type stockWriter interface {
	DecrementStock(ctx context.Context, productID string, qty int) (*catalog.Product, error)
}

type idempotencyStore interface {
	CreateIfNotExists(ctx context.Context, key, reference string) (bool, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.Record, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type counter interface {
	Incr(ctx context.Context, name string, dims map[string]string)
}

// Processor reserves stock for paid orders announced on the orders queue.
type Processor struct {
	orders  orderReader
	stock   stockWriter
	idem    idempotencyStore
	metrics counter
	log     zerolog.Logger
}

// Tables names the DynamoDB tables the worker touches.
type Tables struct {
	Orders      string
	Products    string
	Idempotency string
}

// NewProcessor creates a worker processor with AWS clients injected.
func NewProcessor(clients *aws.AWSClients, tables Tables, ttl time.Duration, namespace string, log zerolog.Logger) *Processor {
	var m counter = metrics.Nop{}
	if clients.CloudWatch != nil && namespace != "" {
		m = metrics.NewCloudWatch(clients.CloudWatch, namespace, log)
	}
	return &Processor{
		orders:  orders.NewStore(clients.DynamoDB, tables.Orders),
		stock:   catalog.NewStore(clients.DynamoDB, tables.Products),
		idem:    idempotency.NewStore(clients.DynamoDB, tables.Idempotency, ttl),
		metrics: m,
		log:     log.With().Str("component", "worker").Logger(),
	}
}

// Handle processes an SQS batch. Failed messages are reported individually so
// only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("message_id", rec.MessageId).Msg("message failed")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg orders.PaidEvent
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.OrderID == "" {
		return errors.New("invalid message body: missing order_id")
	}
	key := msg.IdempotencyKey
	if key == "" {
		key = orders.StockKey(msg.OrderID)
	}
	log := p.log.With().
		Str("order_id", msg.OrderID).
		Str("idempotency_key", key).
		Str("correlation_id", msg.CorrelationID).
		Logger()

	order, err := p.orders.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}
	if order.PaymentStatus != orders.PaymentPaid {
		log.Warn().Str("payment_status", string(order.PaymentStatus)).Msg("order not paid, skipping stock reservation")
		return nil
	}

	proceed, err := p.claim(ctx, key, msg.OrderID)
	if err != nil {
		return err
	}
	if !proceed {
		log.Info().Msg("stock already reserved")
		return nil
	}

	if err := p.decrementAll(ctx, key, order); err != nil {
		if merr := p.idem.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.Warn().Err(merr).Msg("mark failed")
		}
		if aerr := p.orders.IncrementAttempts(ctx, msg.OrderID); aerr != nil {
			log.Warn().Err(aerr).Msg("increment attempts")
		}
		p.metrics.Incr(ctx, "StockReservation", map[string]string{"Result": "failed"})
		return fmt.Errorf("reserve stock for %s: %w", msg.OrderID, err)
	}

	body, _ := json.Marshal(map[string]interface{}{"order_id": msg.OrderID, "lines": len(order.Items)})
	if err := p.idem.MarkDone(ctx, key, string(body), 200); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	p.metrics.Incr(ctx, "StockReservation", map[string]string{"Result": "reserved"})
	log.Info().Int("lines", len(order.Items)).Msg("stock reserved")
	return nil
}

// decrementAll decrements every line, each under its own idempotency key so a
// redelivery after a partial failure only retries the lines that did not land.
func (p *Processor) decrementAll(ctx context.Context, key string, order *orders.Order) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelDecrements)
	for _, it := range order.Items {
		if it.Quantity <= 0 {
			continue
		}
		eg.Go(func() error {
			lineKey := key + ":" + it.ProductID
			proceed, err := p.claim(ctx, lineKey, order.OrderID)
			if err != nil || !proceed {
				return err
			}
			if _, err := p.stock.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				_ = p.idem.MarkFailed(context.WithoutCancel(ctx), lineKey, err.Error())
				return err
			}
			return p.idem.MarkDone(ctx, lineKey, "", 200)
		})
	}
	return eg.Wait()
}

// claim reports whether the caller should do the work guarded by key. A DONE
// key means the work already happened; a FAILED key is taken over.
func (p *Processor) claim(ctx context.Context, key, ref string) (bool, error) {
	created, err := p.idem.CreateIfNotExists(ctx, key, ref)
	if err != nil {
		return false, fmt.Errorf("idempotency create: %w", err)
	}
	if created {
		return true, nil
	}

	rec, err := p.idem.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("idempotency get: %w", err)
	}
	if rec == nil {
		return false, fmt.Errorf("%w: %s vanished", errClaimHeld, key)
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return false, nil
	case idempotency.StatusFailed:
		ok, err := p.idem.Reclaim(ctx, key)
		if err != nil {
			return false, fmt.Errorf("idempotency reclaim: %w", err)
		}
		if !ok {
			return false, fmt.Errorf("%w: %s", errClaimHeld, key)
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: %s", errClaimHeld, key)
	}
}
