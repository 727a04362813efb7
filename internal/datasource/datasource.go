// Package datasource answers aggregated metric queries for cluster resources.
// A strategy never talks to a metrics backend directly; it asks a Datasource
// for the aggregate of one meter over a time window.
package datasource

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData means the backend answered but holds no samples for the query.
	ErrNoData = errors.New("no data for query")

	ErrBackendUnreachable = errors.New("metrics backend unreachable")
	ErrUnsupportedMeter   = errors.New("meter not supported by backend")
	ErrNoDatasource       = errors.New("no configured datasource can serve the requested meters")
)

// Meter names a resource usage series.
type Meter string

const (
	// MeterCPUUtil is instance CPU utilization in percent of its vCPUs.
	MeterCPUUtil Meter = "cpu_util"
	// MeterMemoryResident is instance resident memory in MB.
	MeterMemoryResident Meter = "memory.resident"
)

// KnownMeters lists the meters understood by the built-in backends.
var KnownMeters = []Meter{MeterCPUUtil, MeterMemoryResident}

// Aggregation is the statistic applied over the query window.
type Aggregation string

const (
	AggregationMean Aggregation = "mean"
	AggregationMax  Aggregation = "max"
	AggregationMin  Aggregation = "min"
)

// Query describes one aggregated lookup.
type Query struct {
	ResourceID  string
	Meter       Meter
	Period      time.Duration
	Granularity time.Duration
	Aggregation Aggregation

	// Dimensions carries backend-specific filters, if any.
	Dimensions map[string]string

	// End bounds the window; zero means now.
	End time.Time
}

// Window returns the [start, end] range of the query.
func (q Query) Window(now time.Time) (time.Time, time.Time) {
	end := q.End
	if end.IsZero() {
		end = now
	}
	return end.Add(-q.Period), end
}

// Datasource is a metrics backend able to answer aggregated queries.
//
// StatisticAggregation returns ErrNoData (possibly wrapped) when the series
// is empty; any other error is a query failure. Callers treat both the same
// way: the resource is skipped.
type Datasource interface {
	Name() string
	Ping(ctx context.Context) error
	Supports(m Meter) bool
	StatisticAggregation(ctx context.Context, q Query) (float64, error)
}
