package datasource

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

var overTimeFuncs = map[Aggregation]string{
	AggregationMean: "avg_over_time",
	AggregationMax:  "max_over_time",
	AggregationMin:  "min_over_time",
}

// queryStatistic builds the PromQL for one aggregated lookup, e.g.
//
//	avg_over_time(instance_cpu_util{resource_id="vm-1"}[5m:5m])
//
// Extra dimensions become additional equality matchers, sorted by name.
func queryStatistic(agg Aggregation, metric, label, resourceID string, dims map[string]string, period, step time.Duration) (string, error) {
	fn, ok := overTimeFuncs[agg]
	if !ok {
		return "", fmt.Errorf("unsupported aggregation %q", agg)
	}
	if period <= 0 {
		return "", fmt.Errorf("period must be positive, got %v", period)
	}

	matchers := []string{fmt.Sprintf("%s=%q", label, resourceID)}
	names := make([]string, 0, len(dims))
	for k := range dims {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		matchers = append(matchers, fmt.Sprintf("%s=%q", k, dims[k]))
	}

	rangeSel := formatDuration(period)
	if s := formatDuration(step); s != "" {
		rangeSel += ":" + s
	} else {
		rangeSel += ":"
	}

	return fmt.Sprintf("%s(%s{%s}[%s])", fn, metric, strings.Join(matchers, ","), rangeSel), nil
}
