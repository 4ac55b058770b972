package orders

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a simple multi-table mock that understands the expressions
// issued by Store. It stores items per table: table -> pkValue -> item.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	err    error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

var assignRe = regexp.MustCompile(`(#?\w+) = (:\w+)`)

func (m *mockDynamo) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

func pkOf(item map[string]types.AttributeValue) (string, string, error) {
	for _, name := range []string{"order_id", "idempotency_key"} {
		if v, ok := item[name]; ok {
			return name, v.(*types.AttributeValueMemberS).Value, nil
		}
	}
	return "", "", errors.New("no primary key in item")
}

func clone(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// putAllowed evaluates attribute_not_exists conditions.
func putAllowed(tbl map[string]map[string]types.AttributeValue, pk string, cond *string) bool {
	if cond == nil || !strings.HasPrefix(*cond, "attribute_not_exists(") {
		return true
	}
	_, exists := tbl[pk]
	return !exists
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if !putAllowed(tbl, pk, params.ConditionExpression) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	tbl[pk] = clone(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := tbl[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: clone(item)}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tbl := m.ensureTable(*params.TableName)
	pkName, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := tbl[pk]
	if params.ConditionExpression != nil {
		switch cond := *params.ConditionExpression; {
		case strings.HasPrefix(cond, "attribute_exists("):
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case cond == "#s = :expected":
			if !exists {
				return nil, &types.ConditionalCheckFailedException{}
			}
			curr, ok := item[params.ExpressionAttributeNames["#s"]].(*types.AttributeValueMemberS)
			expected := params.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberS).Value
			if !ok || curr.Value != expected {
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	if !exists {
		item = map[string]types.AttributeValue{pkName: params.Key[pkName]}
	}
	item = clone(item)

	expr := *params.UpdateExpression
	if strings.Contains(expr, "attempts = if_not_exists(attempts") {
		n := 0
		if v, ok := item["attempts"].(*types.AttributeValueMemberN); ok {
			n, _ = strconv.Atoi(v.Value)
		}
		item["attempts"] = &types.AttributeValueMemberN{Value: strconv.Itoa(n + 1)}
	}
	for _, a := range assignRe.FindAllStringSubmatch(expr, -1) {
		attr := a[1]
		if name, ok := params.ExpressionAttributeNames[attr]; ok {
			attr = name
		}
		item[attr] = params.ExpressionAttributeValues[a[2]]
	}
	tbl[pk] = item
	return &dyn.UpdateItemOutput{Attributes: clone(item)}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tbl := m.ensureTable(*params.TableName)
	_, pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	old := tbl[pk]
	delete(tbl, pk)
	return &dyn.DeleteItemOutput{Attributes: old}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := &dyn.ScanOutput{}
	for _, item := range m.ensureTable(*params.TableName) {
		out.Items = append(out.Items, clone(item))
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	// First pass: verify condition expressions
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			_, pk, err := pkOf(p.Item)
			if err != nil {
				return nil, err
			}
			if !putAllowed(m.ensureTable(*p.TableName), pk, p.ConditionExpression) {
				return nil, &types.TransactionCanceledException{}
			}
		}
	}
	// Second pass: apply all puts
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			_, pk, _ := pkOf(p.Item)
			m.ensureTable(*p.TableName)[pk] = clone(p.Item)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
