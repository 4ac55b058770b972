package metrics

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/rs/zerolog"

	"github.com/mudichurmart/storefront/internal/aws"
)

// CloudWatch publishes counters as CloudWatch metrics. Failures are logged
// and never returned: a lost data point must not fail a checkout.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	timeout   time.Duration
	log       zerolog.Logger
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace string, log zerolog.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		timeout:   2 * time.Second,
		log:       log,
		nowFunc:   time.Now,
	}
}

// Incr adds 1 to the named counter.
func (c *CloudWatch) Incr(ctx context.Context, name string, dims map[string]string) {
	c.Add(ctx, name, 1, dims)
}

// Add adds v to the named counter.
func (c *CloudWatch) Add(ctx context.Context, name string, v float64, dims map[string]string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	now := c.nowFunc()
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{{
			MetricName: aws.String(name),
			Dimensions: dimensions(dims),
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      &v,
		}},
	})
	if err != nil {
		c.log.Warn().Err(err).Str("metric", name).Msg("put metric data")
	}
}

func dimensions(dims map[string]string) []cwtypes.Dimension {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		out = append(out, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(dims[k])})
	}
	return out
}

// Nop discards counters.
type Nop struct{}

func (Nop) Incr(context.Context, string, map[string]string) {}
