package datasource

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// DefaultCloudWatchMetrics maps meters to CloudWatch metric names. EC2 does
// not publish memory by default; set a CWAgent metric to enable it.
var DefaultCloudWatchMetrics = map[Meter]string{
	MeterCPUUtil: "CPUUtilization",
}

// cloudWatchAPI is the subset of the CloudWatch client used here.
type cloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
	ListMetrics(ctx context.Context, params *cloudwatch.ListMetricsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
}

// CloudWatch answers queries from Amazon CloudWatch metric statistics.
type CloudWatch struct {
	client    cloudWatchAPI
	namespace string
	dimension string
	metrics   map[Meter]string
	now       func() time.Time
}

// CloudWatchOption configures the CloudWatch datasource.
type CloudWatchOption func(*CloudWatch)

// WithNamespace sets the CloudWatch namespace (default AWS/EC2).
func WithNamespace(ns string) CloudWatchOption {
	return func(c *CloudWatch) { c.namespace = ns }
}

// WithCloudWatchMetrics overrides the metric name used for individual meters.
func WithCloudWatchMetrics(names map[Meter]string) CloudWatchOption {
	return func(c *CloudWatch) {
		for m, n := range names {
			c.metrics[m] = n
		}
	}
}

// NewCloudWatch creates a datasource using the default AWS SDK config chain.
// IMDS is disabled to avoid long timeouts when running off EC2.
func NewCloudWatch(ctx context.Context, region string, opts ...CloudWatchOption) (*CloudWatch, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithEC2IMDSClientEnableState(imds.ClientDisabled),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newCloudWatch(cloudwatch.NewFromConfig(cfg), opts...), nil
}

func newCloudWatch(client cloudWatchAPI, opts ...CloudWatchOption) *CloudWatch {
	c := &CloudWatch{
		client:    client,
		namespace: "AWS/EC2",
		dimension: "InstanceId",
		metrics:   make(map[Meter]string, len(DefaultCloudWatchMetrics)),
		now:       time.Now,
	}
	for m, n := range DefaultCloudWatchMetrics {
		c.metrics[m] = n
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns "cloudwatch".
func (c *CloudWatch) Name() string { return "cloudwatch" }

// Supports reports whether a metric name is configured for m.
func (c *CloudWatch) Supports(m Meter) bool {
	return c.metrics[m] != ""
}

// Ping lists one metric in the namespace to validate credentials and reachability.
func (c *CloudWatch) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.client.ListMetrics(ctx, &cloudwatch.ListMetricsInput{
		Namespace: aws.String(c.namespace),
	})
	if err != nil {
		return fmt.Errorf("%w: cloudwatch: %v", ErrBackendUnreachable, err)
	}
	return nil
}

var cloudWatchStatistics = map[Aggregation]cwtypes.Statistic{
	AggregationMean: cwtypes.StatisticAverage,
	AggregationMax:  cwtypes.StatisticMaximum,
	AggregationMin:  cwtypes.StatisticMinimum,
}

// StatisticAggregation fetches datapoints at the query granularity and folds
// them with the requested aggregation.
func (c *CloudWatch) StatisticAggregation(ctx context.Context, q Query) (float64, error) {
	metric := c.metrics[q.Meter]
	if metric == "" {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMeter, q.Meter)
	}
	stat, ok := cloudWatchStatistics[q.Aggregation]
	if !ok {
		return 0, fmt.Errorf("unsupported aggregation %q", q.Aggregation)
	}

	period := int32(q.Granularity / time.Second)
	if period <= 0 {
		period = int32(q.Period / time.Second)
	}
	start, end := q.Window(c.now())

	dims := []cwtypes.Dimension{{Name: aws.String(c.dimension), Value: aws.String(q.ResourceID)}}
	for k, v := range q.Dimensions {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	out, err := c.client.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(c.namespace),
		MetricName: aws.String(metric),
		Dimensions: dims,
		StartTime:  aws.Time(start),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(period),
		Statistics: []cwtypes.Statistic{stat},
	})
	if err != nil {
		return 0, fmt.Errorf("querying %s for %s: %w", q.Meter, q.ResourceID, err)
	}

	return foldDatapoints(out.Datapoints, q.Aggregation)
}

func foldDatapoints(points []cwtypes.Datapoint, agg Aggregation) (float64, error) {
	var (
		sum   float64
		count int
		best  = math.NaN()
	)
	for _, dp := range points {
		var v *float64
		switch agg {
		case AggregationMean:
			v = dp.Average
		case AggregationMax:
			v = dp.Maximum
		case AggregationMin:
			v = dp.Minimum
		}
		if v == nil {
			continue
		}
		count++
		sum += *v
		switch {
		case math.IsNaN(best):
			best = *v
		case agg == AggregationMax && *v > best:
			best = *v
		case agg == AggregationMin && *v < best:
			best = *v
		}
	}
	if count == 0 {
		return 0, ErrNoData
	}
	if agg == AggregationMean {
		return sum / float64(count), nil
	}
	return best, nil
}
