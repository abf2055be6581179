// Package dynamodb provides a near.Backend stored in an AWS DynamoDB table.
//
// Table schema:
//   - Partition key: id (number)
//   - payload (binary): the codec-encoded record
//
// Create the table with CreateTable or:
//
//	aws dynamodb create-table \
//	  --table-name near-records \
//	  --attribute-definitions AttributeName=id,AttributeType=N \
//	  --key-schema AttributeName=id,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
//
// DynamoDB scans are unordered; indexes sort what they load.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
	"github.com/hupe1980/near/storage"
)

var _ near.Backend = (*Store)(nil)

const (
	attrID      = "id"
	attrPayload = "payload"
)

// Client is the subset of the DynamoDB API the store uses.
// *dynamodb.Client satisfies it.
type Client interface {
	dynamodb.ScanAPIClient
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Options configures New and NewStore.
type Options struct {
	Codec          codec.Codec
	Region         string
	Endpoint       string
	ConsistentRead bool
	CreateTable    bool
}

// Option configures a DynamoDB store.
type Option func(o *Options)

// WithCodec sets the record codec.
func WithCodec(c codec.Codec) Option { return func(o *Options) { o.Codec = c } }

// WithRegion overrides the region from the default AWS config.
func WithRegion(region string) Option { return func(o *Options) { o.Region = region } }

// WithEndpoint points the client at another endpoint, e.g. DynamoDB Local.
func WithEndpoint(endpoint string) Option { return func(o *Options) { o.Endpoint = endpoint } }

// WithConsistentRead makes Get and Scan strongly consistent.
func WithConsistentRead(consistent bool) Option {
	return func(o *Options) { o.ConsistentRead = consistent }
}

// WithCreateTable makes New create the table when it does not exist.
func WithCreateTable() Option { return func(o *Options) { o.CreateTable = true } }

// Store is a DynamoDB-backed backend.
type Store struct {
	client Client
	table  string
	opts   Options
}

// New loads the default AWS configuration and creates a store for table.
func New(ctx context.Context, table string, optFns ...Option) (*Store, error) {
	opts := applyOptions(optFns)

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("dynamodb: load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	if opts.CreateTable {
		if err := CreateTable(ctx, client, table); err != nil {
			return nil, err
		}
	}
	return NewStore(client, table, optFns...)
}

// NewStore creates a store over an existing client.
func NewStore(client Client, table string, optFns ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("dynamodb: client is nil")
	}
	if table == "" {
		return nil, errors.New("dynamodb: table is required")
	}
	opts := applyOptions(optFns)
	if opts.Codec == nil {
		return nil, errors.New("dynamodb: codec is nil")
	}
	return &Store{client: client, table: table, opts: opts}, nil
}

func applyOptions(optFns []Option) Options {
	opts := Options{Codec: codec.Default}
	for _, fn := range optFns {
		fn(&opts)
	}
	return opts
}

func keyOf(id near.ID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID: &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(id), 10)},
	}
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(s.opts.ConsistentRead),
	})
	if err != nil {
		return near.Record{}, false, fmt.Errorf("dynamodb: get %d: %w", id, err)
	}
	if len(out.Item) == 0 {
		return near.Record{}, false, nil
	}
	rec, err := s.decode(out.Item)
	if err != nil {
		return near.Record{}, false, err
	}
	return rec, true, nil
}

// Put stores rec.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	payload, err := s.opts.Codec.Encode(rec)
	if err != nil {
		return err
	}
	item := keyOf(rec.ID)
	item[attrPayload] = &types.AttributeValueMemberB{Value: payload}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: put %d: %w", rec.ID, err)
	}
	return nil
}

// Remove deletes the item of id. DynamoDB deletes are idempotent.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyOf(id),
	})
	if err != nil {
		return fmt.Errorf("dynamodb: remove %d: %w", id, err)
	}
	return nil
}

// Scan pages through the whole table.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:      aws.String(s.table),
			ConsistentRead: aws.Bool(s.opts.ConsistentRead),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(near.Record{}, fmt.Errorf("dynamodb: scan: %w", err))
				return
			}
			for _, item := range page.Items {
				rec, err := s.decode(item)
				if err != nil {
					yield(near.Record{}, err)
					return
				}
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

func (s *Store) decode(item map[string]types.AttributeValue) (near.Record, error) {
	n, ok := item[attrID].(*types.AttributeValueMemberN)
	if !ok {
		return near.Record{}, fmt.Errorf("dynamodb: item without numeric %q attribute", attrID)
	}
	id, err := strconv.ParseUint(n.Value, 10, 64)
	if err != nil {
		return near.Record{}, fmt.Errorf("dynamodb: item id %q: %w", n.Value, err)
	}
	b, ok := item[attrPayload].(*types.AttributeValueMemberB)
	if !ok {
		return near.Record{}, fmt.Errorf("dynamodb: item %d without binary %q attribute", id, attrPayload)
	}
	return storage.Decode(s.opts.Codec, near.ID(id), b.Value)
}

// CreateTable creates the records table with on-demand billing and waits
// until it is active. An existing table is left alone.
func CreateTable(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(attrID), AttributeType: types.ScalarAttributeTypeN},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(attrID), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("dynamodb: create table %s: %w", table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, 2*time.Minute)
}
