package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// StaticValues maps resource ids to per-meter aggregates. A null value means
// the resource is known but has no samples.
type StaticValues map[string]map[Meter]*float64

// Static answers queries from a JSON file of pre-aggregated values.
// Used for testing, offline audits, and CI pipelines. The aggregation, period
// and granularity of a query are ignored.
type Static struct {
	filePath string

	once   sync.Once
	values StaticValues
	err    error
}

// NewStatic creates a datasource that reads from a JSON file on first use.
func NewStatic(filePath string) *Static {
	return &Static{filePath: filePath}
}

// NewStaticFromValues creates a datasource from in-memory values.
func NewStaticFromValues(values StaticValues) *Static {
	s := &Static{values: values}
	s.once.Do(func() {})
	return s
}

// Name returns "static".
func (s *Static) Name() string { return "static" }

// Supports returns true for every known meter.
func (s *Static) Supports(m Meter) bool {
	for _, k := range KnownMeters {
		if k == m {
			return true
		}
	}
	return false
}

// Ping checks that the file exists and parses.
func (s *Static) Ping(ctx context.Context) error {
	if _, err := s.load(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}
	return nil
}

// StatisticAggregation looks up the stored value for the resource and meter.
func (s *Static) StatisticAggregation(ctx context.Context, q Query) (float64, error) {
	values, err := s.load()
	if err != nil {
		return 0, err
	}
	v, ok := values[q.ResourceID][q.Meter]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s %s", ErrNoData, q.Meter, q.ResourceID)
	}
	return *v, nil
}

func (s *Static) load() (StaticValues, error) {
	s.once.Do(func() {
		data, err := os.ReadFile(s.filePath)
		if err != nil {
			s.err = fmt.Errorf("reading static metrics file: %w", err)
			return
		}
		var values StaticValues
		if err := json.Unmarshal(data, &values); err != nil {
			s.err = fmt.Errorf("parsing static metrics file: %w", err)
			return
		}
		s.values = values
	})
	return s.values, s.err
}
