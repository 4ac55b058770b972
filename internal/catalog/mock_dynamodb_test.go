package catalog

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// memDynamo is an in-memory products table that understands the expressions
// issued by Store.
type memDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	// pageSize > 0 splits Scan results into pages.
	pageSize int
	err      error
}

func newMemDynamo() *memDynamo {
	return &memDynamo{items: map[string]map[string]types.AttributeValue{}}
}

var placeholderAttrs = map[string]string{
	":name":   "name",
	":cat":    "category_id",
	":price":  "price",
	":disc":   "discount",
	":stock":  "stock",
	":img":    "image_url",
	":active": "active",
}

func pk(m map[string]types.AttributeValue) string {
	return m["id"].(*types.AttributeValueMemberS).Value
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id := pk(in.Item)
	if in.ConditionExpression != nil && *in.ConditionExpression == "attribute_not_exists(id)" {
		if _, ok := m.items[id]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[id] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *memDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[pk(in.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (m *memDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[pk(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	item = copyItem(item)

	if q, ok := in.ExpressionAttributeValues[":q"]; ok {
		want, _ := strconv.Atoi(q.(*types.AttributeValueMemberN).Value)
		have, _ := strconv.Atoi(item["stock"].(*types.AttributeValueMemberN).Value)
		if strings.Contains(*in.ConditionExpression, "stock >= :q") && have < want {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["stock"] = &types.AttributeValueMemberN{Value: strconv.Itoa(have - want)}
	}
	for ph, v := range in.ExpressionAttributeValues {
		if attr, ok := placeholderAttrs[ph]; ok {
			item[attr] = v
		}
	}
	m.items[pk(in.Key)] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (m *memDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	id := pk(in.Key)
	old, ok := m.items[id]
	if !ok {
		return &dyn.DeleteItemOutput{}, nil
	}
	delete(m.items, id)
	return &dyn.DeleteItemOutput{Attributes: old}, nil
}

func (m *memDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var all []map[string]types.AttributeValue
	for _, it := range m.items {
		all = append(all, copyItem(it))
	}
	if m.pageSize <= 0 {
		return &dyn.ScanOutput{Items: all}, nil
	}

	start := 0
	if in.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(in.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	// map iteration order is random; sort by id so pages are stable
	sortByID(all)
	end := start + m.pageSize
	out := &dyn.ScanOutput{}
	if end < len(all) {
		out.Items = all[start:end]
		out.LastEvaluatedKey = map[string]types.AttributeValue{"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)}}
	} else {
		out.Items = all[start:]
	}
	return out, nil
}

func (m *memDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not supported")
}

func sortByID(items []map[string]types.AttributeValue) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && pk(items[j]) < pk(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
