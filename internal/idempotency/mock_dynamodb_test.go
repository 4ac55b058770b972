package idempotency

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memTable is a single-table DynamoDB stand-in keyed by idempotency_key. It
// understands the SET and condition expressions Store issues.
type memTable struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	calls map[string]int
}

func newMemTable() *memTable {
	return &memTable{
		items: map[string]map[string]types.AttributeValue{},
		calls: map[string]int{},
	}
}

var (
	setRe  = regexp.MustCompile(`(#?\w+) = (:\w+)`)
	condRe = regexp.MustCompile(`^(#?\w+) = (:\w+)$`)
)

func pk(m map[string]types.AttributeValue) (string, error) {
	v, ok := m["idempotency_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing idempotency_key")
	}
	return v.Value, nil
}

func attrName(tok string, names map[string]string) string {
	if strings.HasPrefix(tok, "#") {
		return names[tok]
	}
	return tok
}

// holds evaluates the subset of condition expressions Store uses.
func holds(cond *string, item map[string]types.AttributeValue, names map[string]string, vals map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	switch {
	case *cond == "attribute_not_exists(idempotency_key)":
		return item == nil
	case condRe.MatchString(*cond):
		if item == nil {
			return false
		}
		m := condRe.FindStringSubmatch(*cond)
		got, _ := item[attrName(m[1], names)].(*types.AttributeValueMemberS)
		want, _ := vals[m[2]].(*types.AttributeValueMemberS)
		return got != nil && want != nil && got.Value == want.Value
	}
	return false
}

func (m *memTable) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["put"]++
	k, err := pk(in.Item)
	if err != nil {
		return nil, err
	}
	if !holds(in.ConditionExpression, m.items[k], in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	m.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *memTable) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["get"]++
	k, err := pk(in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.items[k]}, nil
}

func (m *memTable) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls["update"]++
	k, err := pk(in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.items[k]
	if !holds(in.ConditionExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !ok {
		item = map[string]types.AttributeValue{"idempotency_key": in.Key["idempotency_key"]}
	}
	expr := strings.TrimPrefix(*in.UpdateExpression, "SET ")
	for _, a := range setRe.FindAllStringSubmatch(expr, -1) {
		item[attrName(a[1], in.ExpressionAttributeNames)] = in.ExpressionAttributeValues[a[2]]
	}
	m.items[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *memTable) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := pk(in.Key)
	if err != nil {
		return nil, err
	}
	old := m.items[k]
	delete(m.items, k)
	return &dyn.DeleteItemOutput{Attributes: old}, nil
}

func (m *memTable) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &dyn.ScanOutput{}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func (m *memTable) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("memTable: transactions are not supported")
}
