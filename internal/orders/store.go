package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mudichurmart/storefront/internal/aws"
)

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")
	// ErrDuplicate means the idempotency key of a transactional create was
	// already taken.
	ErrDuplicate = errors.New("duplicate order request")
	// ErrStatusMismatch is returned when a conditional status update finds a
	// different status than expected.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	ErrAccessDenied   = errors.New("orders access denied")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) stamp(o *Order) {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
}

// Create stores a new order; it fails with ErrAlreadyExists if the id is taken.
func (s *Store) Create(ctx context.Context, o Order) (*Order, error) {
	s.stamp(&o)
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrAlreadyExists
		}
		return nil, wrap("put item", err)
	}
	return &o, nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (condition attribute_not_exists(idempotency_key))
//   - order record in the orders table (condition attribute_not_exists(order_id))
//
// idempotencyItem must marshal to a map holding idempotency_key. An expires_at
// TTL is added when missing and ttlWindow > 0.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, o Order, ttlWindow time.Duration) (*Order, error) {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return nil, fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	s.stamp(&o)
	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: aws.String("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: aws.String("attribute_not_exists(order_id)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return nil, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return nil, wrap("transact write", err)
	}
	return &o, nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key(orderID),
	})
	if err != nil {
		return nil, wrap("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// List returns every order, newest first.
func (s *Store) List(ctx context.Context) ([]Order, error) {
	var (
		list     []Order
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &s.tableName,
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, wrap("scan", err)
		}
		var page []Order
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		list = append(list, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

// UpdateStatus conditionally updates the order status from expected -> next.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID string, expected, next Status) error {
	return s.updateStatus(ctx, orderID, expected, next, "")
}

// updateStatus also sets the payment status when payment is not empty.
func (s *Store) updateStatus(ctx context.Context, orderID string, expected, next Status, payment PaymentStatus) error {
	now := s.nowFunc().UTC()
	update := "SET #s = :new, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(next)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if payment != "" {
		update += ", payment_status = :ps"
		values[":ps"] = &types.AttributeValueMemberS{Value: string(payment)}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       key(orderID),
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String("#s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "order_status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return wrap("update item", err)
	}
	return nil
}

// SetPayment records the payment outcome of an existing order.
func (s *Store) SetPayment(ctx context.Context, orderID string, payment PaymentStatus, status Status, paymentID string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(orderID),
		UpdateExpression:    aws.String("SET payment_status = :ps, order_status = :os, payment_id = :pid, updated_at = :ua"),
		ConditionExpression: aws.String("attribute_exists(order_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ps":  &types.AttributeValueMemberS{Value: string(payment)},
			":os":  &types.AttributeValueMemberS{Value: string(status)},
			":pid": &types.AttributeValueMemberS{Value: paymentID},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return wrap("update item", err)
	}
	return nil
}

// IncrementAttempts increases the attempts counter by 1 (worker retries).
func (s *Store) IncrementAttempts(ctx context.Context, orderID string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              key(orderID),
		UpdateExpression: aws.String("SET attempts = if_not_exists(attempts, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return wrap("increment attempts", err)
	}
	return nil
}

func key(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func wrap(op string, err error) error {
	if aws.IsAccessDenied(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrAccessDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
