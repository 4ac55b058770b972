package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/mudichurmart/storefront/internal/aws"
)

// Store persists products in a DynamoDB table keyed by id.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
	newID     func() string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
	}
}

// Create inserts a new product under a fresh id, stamped with the store clock.
func (s *Store) Create(ctx context.Context, in ProductInput) (*Product, error) {
	p := Product{
		ID:         s.newID(),
		Name:       in.Name,
		CategoryID: in.CategoryID,
		Price:      in.Price,
		Discount:   in.Discount,
		Stock:      in.Stock,
		ImageURL:   in.ImageURL,
		Active:     in.Active,
		CreatedAt:  s.nowFunc().UTC(),
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrAlreadyExists
		}
		return nil, wrap("put item", err)
	}
	return &p, nil
}

// Update overwrites the mutable fields of an existing product and returns the
// stored result.
func (s *Store) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key:       key(id),
		UpdateExpression: aws.String("SET #n = :name, category_id = :cat, price = :price, " +
			"discount = :disc, stock = :stock, image_url = :img, active = :active"),
		ConditionExpression:      aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":name":   &types.AttributeValueMemberS{Value: in.Name},
			":cat":    &types.AttributeValueMemberS{Value: in.CategoryID},
			":price":  number(strconv.FormatFloat(in.Price, 'f', -1, 64)),
			":disc":   number(strconv.FormatFloat(in.Discount, 'f', -1, 64)),
			":stock":  number(strconv.Itoa(in.Stock)),
			":img":    &types.AttributeValueMemberS{Value: in.ImageURL},
			":active": &types.AttributeValueMemberBOOL{Value: in.Active},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, wrap("update item", err)
	}
	return unmarshalProduct(out.Attributes)
}

// SetImage records the public URL of a product's image.
func (s *Store) SetImage(ctx context.Context, id, url string) (*Product, error) {
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       key(id),
		UpdateExpression:          aws.String("SET image_url = :img"),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":img": &types.AttributeValueMemberS{Value: url}},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrNotFound
		}
		return nil, wrap("update item", err)
	}
	return unmarshalProduct(out.Attributes)
}

// Delete removes a product and returns what was stored.
func (s *Store) Delete(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:    &s.tableName,
		Key:          key(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, wrap("delete item", err)
	}
	if len(out.Attributes) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalProduct(out.Attributes)
}

// Get fetches a product by id.
func (s *Store) Get(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       key(id),
	})
	if err != nil {
		return nil, wrap("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return unmarshalProduct(out.Item)
}

// List scans the table and returns matching products, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Product, error) {
	var (
		products []Product
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
		var page []Product
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal products: %w", err)
		}
		for _, p := range page {
			if f.match(p) {
				products = append(products, p)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.SliceStable(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

// DecrementStock subtracts qty from the product's stock, refusing to go below zero.
func (s *Store) DecrementStock(ctx context.Context, id string, qty int) (*Product, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("decrement stock: quantity must be positive, got %d", qty)
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       key(id),
		UpdateExpression:          aws.String("SET stock = stock - :q"),
		ConditionExpression:       aws.String("attribute_exists(id) AND stock >= :q"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":q": number(strconv.Itoa(qty))},
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("product %s: %w", id, ErrInsufficientStock)
		}
		return nil, wrap("update item", err)
	}
	return unmarshalProduct(out.Attributes)
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func number(v string) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: v}
}

func unmarshalProduct(item map[string]types.AttributeValue) (*Product, error) {
	var p Product
	if err := attributevalue.UnmarshalMap(item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

func wrap(op string, err error) error {
	if aws.IsAccessDenied(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrAccessDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
