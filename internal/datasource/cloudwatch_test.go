package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloudWatch struct {
	points  []cwtypes.Datapoint
	err     error
	lastIn  *cloudwatch.GetMetricStatisticsInput
	listErr error
}

func (f *fakeCloudWatch) GetMetricStatistics(_ context.Context, in *cloudwatch.GetMetricStatisticsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error) {
	f.lastIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.GetMetricStatisticsOutput{Datapoints: f.points}, nil
}

func (f *fakeCloudWatch) ListMetrics(_ context.Context, _ *cloudwatch.ListMetricsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &cloudwatch.ListMetricsOutput{}, nil
}

func point(avg, max, min float64) cwtypes.Datapoint {
	return cwtypes.Datapoint{Average: aws.Float64(avg), Maximum: aws.Float64(max), Minimum: aws.Float64(min)}
}

func TestCloudWatch_MeanOverDatapoints(t *testing.T) {
	fake := &fakeCloudWatch{points: []cwtypes.Datapoint{point(20, 30, 10), point(40, 50, 35)}}
	cw := newCloudWatch(fake)
	end := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	got, err := cw.StatisticAggregation(context.Background(), Query{
		ResourceID:  "i-0abc",
		Meter:       MeterCPUUtil,
		Period:      10 * time.Minute,
		Granularity: 5 * time.Minute,
		Aggregation: AggregationMean,
		End:         end,
	})
	require.NoError(t, err)
	assert.InDelta(t, 30.0, got, 1e-9)

	in := fake.lastIn
	require.NotNil(t, in)
	assert.Equal(t, "AWS/EC2", aws.ToString(in.Namespace))
	assert.Equal(t, "CPUUtilization", aws.ToString(in.MetricName))
	assert.Equal(t, int32(300), aws.ToInt32(in.Period))
	assert.Equal(t, end.Add(-10*time.Minute), aws.ToTime(in.StartTime))
	assert.Equal(t, []cwtypes.Statistic{cwtypes.StatisticAverage}, in.Statistics)
	require.Len(t, in.Dimensions, 1)
	assert.Equal(t, "i-0abc", aws.ToString(in.Dimensions[0].Value))
}

func TestCloudWatch_MaxAndMin(t *testing.T) {
	fake := &fakeCloudWatch{points: []cwtypes.Datapoint{point(20, 30, 10), point(40, 50, 5)}}
	cw := newCloudWatch(fake)
	q := Query{ResourceID: "i-1", Meter: MeterCPUUtil, Period: time.Hour, Granularity: time.Minute}

	q.Aggregation = AggregationMax
	got, err := cw.StatisticAggregation(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	q.Aggregation = AggregationMin
	got, err = cw.StatisticAggregation(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestCloudWatch_NoDatapoints(t *testing.T) {
	cw := newCloudWatch(&fakeCloudWatch{})
	_, err := cw.StatisticAggregation(context.Background(), Query{
		ResourceID: "i-1", Meter: MeterCPUUtil, Period: time.Hour, Granularity: time.Minute, Aggregation: AggregationMean,
	})
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCloudWatch_MemoryNeedsConfiguredMetric(t *testing.T) {
	cw := newCloudWatch(&fakeCloudWatch{})
	assert.False(t, cw.Supports(MeterMemoryResident))

	cw = newCloudWatch(&fakeCloudWatch{},
		WithNamespace("CWAgent"),
		WithCloudWatchMetrics(map[Meter]string{MeterMemoryResident: "mem_used"}))
	assert.True(t, cw.Supports(MeterMemoryResident))
}

func TestCloudWatch_Errors(t *testing.T) {
	cw := newCloudWatch(&fakeCloudWatch{err: errors.New("throttled"), listErr: errors.New("no creds")})

	_, err := cw.StatisticAggregation(context.Background(), Query{
		ResourceID: "i-1", Meter: MeterCPUUtil, Period: time.Hour, Granularity: time.Minute, Aggregation: AggregationMean,
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoData))

	assert.True(t, errors.Is(cw.Ping(context.Background()), ErrBackendUnreachable))
}
