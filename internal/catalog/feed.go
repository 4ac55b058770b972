package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/rs/zerolog"

	"github.com/mudichurmart/storefront/internal/aws"
)

const (
	defaultFeedInterval = time.Second
	feedBatchSize       = 100
)

// StreamFeed publishes the products table's DynamoDB stream to a Broker, so
// subscribers see writes made by any process: other API instances, the back
// office and the stock worker. The stream must carry NEW_AND_OLD_IMAGES.
type StreamFeed struct {
	client    aws.DynamoDBStreamsAPI
	streamARN string
	broker    *Broker
	interval  time.Duration
	log       zerolog.Logger

	// iterators holds the next iterator of every shard being read. A shard
	// that has been read to its end moves to finished.
	iterators map[string]*string
	finished  map[string]bool
	started   bool
	rescan    bool
}

func NewStreamFeed(client aws.DynamoDBStreamsAPI, streamARN string, broker *Broker, interval time.Duration, log zerolog.Logger) *StreamFeed {
	if interval <= 0 {
		interval = defaultFeedInterval
	}
	return &StreamFeed{
		client:    client,
		streamARN: streamARN,
		broker:    broker,
		interval:  interval,
		log:       log.With().Str("component", "catalog_feed").Logger(),
		iterators: map[string]*string{},
		finished:  map[string]bool{},
	}
}

// Run polls the stream until ctx is done. Poll errors are logged and retried
// on the next tick.
func (f *StreamFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		if _, err := f.Poll(ctx); err != nil && ctx.Err() == nil {
			f.log.Warn().Err(err).Msg("poll products stream")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll reads one batch from every open shard and publishes what it finds.
// It returns the number of events published.
//
// The first Poll starts open shards at LATEST: subscribers only ever see
// changes made after they connect. Shards discovered later, the children of a
// shard that was read to its end, start at TRIM_HORIZON so no change is lost
// across a split.
func (f *StreamFeed) Poll(ctx context.Context) (int, error) {
	if !f.started || f.rescan {
		if err := f.discover(ctx); err != nil {
			return 0, err
		}
		f.started = true
		f.rescan = false
	}

	published := 0
	for shardID, it := range f.iterators {
		out, err := f.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: it,
			Limit:         aws.Int32(feedBatchSize),
		})
		if err != nil {
			var expired *streamtypes.ExpiredIteratorException
			if errors.As(err, &expired) {
				if err := f.openShard(ctx, shardID, streamtypes.ShardIteratorTypeLatest); err != nil {
					return published, err
				}
				continue
			}
			return published, fmt.Errorf("get records %s: %w", shardID, err)
		}

		for _, rec := range out.Records {
			ev, ok, err := eventFrom(rec)
			if err != nil {
				f.log.Warn().Err(err).Str("shard_id", shardID).Msg("skipping undecodable stream record")
				continue
			}
			if !ok {
				continue
			}
			n := f.broker.Publish(ev)
			published++
			f.log.Debug().Str("event", string(ev.Type)).Str("product_id", ev.Product.ID).Int("subscribers", n).Msg("catalog event")
		}

		if out.NextShardIterator == nil {
			delete(f.iterators, shardID)
			f.finished[shardID] = true
			f.rescan = true
			continue
		}
		f.iterators[shardID] = out.NextShardIterator
	}
	return published, nil
}

func (f *StreamFeed) discover(ctx context.Context) error {
	var start *string
	for {
		out, err := f.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(f.streamARN),
			ExclusiveStartShardId: start,
		})
		if err != nil {
			return fmt.Errorf("describe stream: %w", err)
		}
		desc := out.StreamDescription
		if desc == nil {
			return nil
		}
		for _, sh := range desc.Shards {
			id := deref(sh.ShardId)
			if id == "" || f.finished[id] {
				continue
			}
			if _, reading := f.iterators[id]; reading {
				continue
			}
			closed := sh.SequenceNumberRange != nil && sh.SequenceNumberRange.EndingSequenceNumber != nil
			if !f.started {
				if closed {
					f.finished[id] = true
					continue
				}
				if err := f.openShard(ctx, id, streamtypes.ShardIteratorTypeLatest); err != nil {
					return err
				}
				continue
			}
			if err := f.openShard(ctx, id, streamtypes.ShardIteratorTypeTrimHorizon); err != nil {
				return err
			}
		}
		if desc.LastEvaluatedShardId == nil {
			return nil
		}
		start = desc.LastEvaluatedShardId
	}
}

func (f *StreamFeed) openShard(ctx context.Context, shardID string, from streamtypes.ShardIteratorType) error {
	out, err := f.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(f.streamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: from,
	})
	if err != nil {
		return fmt.Errorf("get shard iterator %s: %w", shardID, err)
	}
	if out.ShardIterator == nil {
		delete(f.iterators, shardID)
		f.finished[shardID] = true
		return nil
	}
	f.iterators[shardID] = out.ShardIterator
	return nil
}

func eventFrom(rec streamtypes.Record) (Event, bool, error) {
	if rec.Dynamodb == nil {
		return Event{}, false, nil
	}
	var (
		t     EventType
		image map[string]streamtypes.AttributeValue
	)
	switch rec.EventName {
	case streamtypes.OperationTypeInsert:
		t, image = EventCreated, rec.Dynamodb.NewImage
	case streamtypes.OperationTypeModify:
		t, image = EventUpdated, rec.Dynamodb.NewImage
	case streamtypes.OperationTypeRemove:
		t, image = EventDeleted, rec.Dynamodb.OldImage
	default:
		return Event{}, false, nil
	}
	if len(image) == 0 {
		return Event{}, false, fmt.Errorf("%s record without image", rec.EventName)
	}

	item, err := attributevalue.FromDynamoDBStreamsMap(image)
	if err != nil {
		return Event{}, false, fmt.Errorf("convert stream image: %w", err)
	}
	p, err := unmarshalProduct(item)
	if err != nil {
		return Event{}, false, err
	}
	return Event{Type: t, Product: *p}, true, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
