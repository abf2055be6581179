package dynamodb

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/index/flat"
	"github.com/hupe1980/near/neartest"
)

// mockClient is an in-memory DynamoDB table keyed by the id attribute.
// Scan returns pageSize items per page.
type mockClient struct {
	mu       sync.RWMutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	scans    int
	failScan bool
}

func newMockClient() *mockClient {
	return &mockClient{
		items:    make(map[string]map[string]types.AttributeValue),
		pageSize: 3,
	}
}

func idOf(key map[string]types.AttributeValue) string {
	return key[attrID].(*types.AttributeValueMemberN).Value
}

func (m *mockClient) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if item, ok := m.items[idOf(params.Key)]; ok {
		return &dynamodb.GetItemOutput{Item: maps.Clone(item)}, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[idOf(params.Item)] = maps.Clone(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, idOf(params.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockClient) Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++
	if m.failScan {
		return nil, errors.New("throttled")
	}

	keys := slices.Sorted(maps.Keys(m.items))
	if params.ExclusiveStartKey != nil {
		start := idOf(params.ExclusiveStartKey)
		i, _ := slices.BinarySearch(keys, start)
		for i < len(keys) && keys[i] <= start {
			i++
		}
		keys = keys[i:]
	}

	out := &dynamodb.ScanOutput{}
	if len(keys) > m.pageSize {
		keys = keys[:m.pageSize]
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			attrID: &types.AttributeValueMemberN{Value: keys[len(keys)-1]},
		}
	}
	for _, k := range keys {
		out.Items = append(out.Items, maps.Clone(m.items[k]))
	}
	return out, nil
}

func newStore(t *testing.T, client Client, optFns ...Option) *Store {
	t.Helper()
	s, err := NewStore(client, "near-records", optFns...)
	require.NoError(t, err)
	return s
}

func TestBackend(t *testing.T) {
	neartest.RunBackend(t, func(t *testing.T) near.Backend { return newStore(t, newMockClient()) })
}

func TestScanPaginates(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	s := newStore(t, client, WithConsistentRead(true))

	for i := range 10 {
		require.NoError(t, s.Put(ctx, near.Record{ID: near.ID(i), Vector: []float32{float32(i)}}))
	}

	recs, err := near.Collect(ctx, s)
	require.NoError(t, err)
	assert.Len(t, recs, 10)
	assert.Equal(t, 4, client.scans)
}

func TestScanError(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	client.failScan = true

	_, err := flat.New(ctx, near.MustSpace(1, near.MetricEuclidean), newStore(t, client))
	assert.ErrorIs(t, err, near.ErrStorageUnavailable)
}

func TestMalformedItem(t *testing.T) {
	ctx := context.Background()
	client := newMockClient()
	client.items["1"] = map[string]types.AttributeValue{
		attrID:      &types.AttributeValueMemberN{Value: "1"},
		attrPayload: &types.AttributeValueMemberS{Value: "not binary"},
	}
	s := newStore(t, client)

	_, _, err := s.Get(ctx, 1)
	assert.Error(t, err)
	_, err = near.Collect(ctx, s)
	assert.Error(t, err)
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil, "t")
	assert.Error(t, err)
	_, err = NewStore(newMockClient(), "")
	assert.Error(t, err)
	_, err = NewStore(newMockClient(), "t", WithCodec(nil))
	assert.Error(t, err)
}

func TestKeyOf(t *testing.T) {
	key := keyOf(^near.ID(0))
	assert.Equal(t, "18446744073709551615", idOf(key))
}
