// Package workloadbalance implements the workload balance migration strategy.
//
// The strategy looks at the CPU or memory utilization of every available
// compute node. When a node is at or above the threshold, one active instance
// is chosen whose departure brings the node's workload closest to the cluster
// average without going below it, and it is live-migrated to the least
// utilized node that can host it. At most one migration is planned per run.
package workloadbalance

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/guimove/hostbalance/internal/datasource"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
	"github.com/guimove/hostbalance/internal/strategy"
)

const (
	Name             = "workload_balance"
	DisplayName      = "Workload Balance Migration Strategy"
	ParamMetrics     = "metrics"
	ParamThreshold   = "threshold"
	ParamPeriod      = "period"
	ParamGranularity = "granularity"

	DefaultThreshold   = 25.0
	DefaultPeriod      = 300.0
	DefaultGranularity = 300.0
)

// Schema returns the strategy's parameter declaration.
func Schema() strategy.Schema {
	return strategy.Schema{
		{
			Name:        ParamMetrics,
			Description: "Workload balance based on metrics: cpu or ram utilization",
			Type:        strategy.TypeString,
			Default:     string(datasource.MeterCPUUtil),
			Choices:     []any{string(datasource.MeterCPUUtil), string(datasource.MeterMemoryResident)},
		},
		{
			Name:        ParamThreshold,
			Description: "workload threshold for migration",
			Type:        strategy.TypeNumber,
			Default:     DefaultThreshold,
			Minimum:     strategy.Bound(0),
			Maximum:     strategy.Bound(100),
		},
		{
			Name:        ParamPeriod,
			Description: "aggregate time period of the metrics backend, in seconds",
			Type:        strategy.TypeNumber,
			Default:     DefaultPeriod,
			Minimum:     strategy.Bound(1),
		},
		{
			Name:        ParamGranularity,
			Description: "The time between two measures in an aggregated timeseries of a metric.",
			Type:        strategy.TypeNumber,
			Default:     DefaultGranularity,
			Minimum:     strategy.Bound(1),
		},
	}
}

// ConfigOpts returns the deployment options the strategy reads.
func ConfigOpts() []strategy.ConfigOpt {
	return []strategy.ConfigOpt{
		{
			Name: "datasources",
			Type: "list",
			Help: "Datasources to use in order to query the needed metrics. " +
				"If one of strategy metric isn't available in the first datasource, " +
				"the next datasource will be chosen.",
			Choices: []string{"prometheus", "cloudwatch", "static"},
			Default: []string{"prometheus", "cloudwatch", "static"},
		},
	}
}

// Descriptor registers the strategy with a strategy.Registry.
func Descriptor() strategy.Descriptor {
	return strategy.Descriptor{
		Name:                    Name,
		DisplayName:             DisplayName,
		TranslatableDisplayName: DisplayName,
		Schema:                  Schema(),
		ConfigOpts:              ConfigOpts(),
		Meters: func(p strategy.Parameters) []datasource.Meter {
			return []datasource.Meter{datasource.Meter(p.String(ParamMetrics))}
		},
		Factory: func(deps strategy.Deps, params strategy.Parameters) (strategy.Strategy, error) {
			return New(deps, params), nil
		},
	}
}

// WorkloadBalance is one run of the strategy.
type WorkloadBalance struct {
	strategy.Base

	meter       datasource.Meter
	threshold   float64
	period      time.Duration
	granularity time.Duration
}

var _ strategy.Strategy = (*WorkloadBalance)(nil)

// New builds a strategy run from validated parameters.
func New(deps strategy.Deps, params strategy.Parameters) *WorkloadBalance {
	return &WorkloadBalance{
		Base:        strategy.NewBase(Name, deps, params),
		meter:       datasource.Meter(params.String(ParamMetrics)),
		threshold:   params.Float(ParamThreshold),
		period:      seconds(params.Float(ParamPeriod)),
		granularity: seconds(params.Float(ParamGranularity)),
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (w *WorkloadBalance) Name() string { return Name }
func (w *WorkloadBalance) DisplayName() string { return DisplayName }
func (w *WorkloadBalance) TranslatableDisplayName() string { return DisplayName }
func (w *WorkloadBalance) Schema() strategy.Schema { return Schema() }
func (w *WorkloadBalance) ConfigOpts() []strategy.ConfigOpt { return ConfigOpts() }

// PreExecute checks the model and the datasource.
func (w *WorkloadBalance) PreExecute(ctx context.Context) error {
	w.Logger.Info("initializing workload balance strategy")
	if err := w.CheckModel(); err != nil {
		return err
	}
	if err := w.RequireDatasource(); err != nil {
		return err
	}
	w.Logger.Debug("cluster model", zap.Stringer("model", w.Model))
	return nil
}

// hostLoad is the computed workload of one node.
type hostLoad struct {
	node     *model.ComputeNode
	workload float64
	util     float64
}

// DoExecute plans at most one migration.
func (w *WorkloadBalance) DoExecute(ctx context.Context) error {
	overloaded, underloaded, avg, cache, err := w.groupHostsByUtil(ctx)
	if err != nil {
		return err
	}

	if len(overloaded) == 0 {
		w.Logger.Debug("no hosts require optimization")
		return nil
	}
	if len(underloaded) == 0 {
		w.Logger.Warn("no hosts under threshold, therefore there are no possible target hosts for any migration",
			zap.Float64("threshold", w.threshold),
			zap.String("meter", string(w.meter)))
		return nil
	}

	sort.SliceStable(overloaded, func(i, j int) bool {
		return overloaded[i].util > overloaded[j].util
	})

	source, inst := w.chooseInstanceToMigrate(overloaded, avg, cache)
	if inst == nil {
		return nil
	}

	destinations, err := w.filterDestinationHosts(underloaded, inst, cache)
	if err != nil {
		return err
	}
	if len(destinations) == 0 {
		w.Logger.Warn("no proper target host could be found, it might be because there is not enough CPU/memory/disk",
			zap.String("instance", inst.UUID))
		return nil
	}
	sort.SliceStable(destinations, func(i, j int) bool {
		return destinations[i].util < destinations[j].util
	})
	dest := destinations[0].node

	if !w.Model.MigrateInstance(inst, source.node, dest) {
		w.Logger.Warn("model refused migration",
			zap.String("instance", inst.UUID),
			zap.String("source", source.node.UUID),
			zap.String("destination", dest.UUID))
		return nil
	}

	w.Solution().AddAction(solution.ActionMigrate, inst.UUID, map[string]any{
		solution.ParamMigrationType:   solution.MigrationLive,
		solution.ParamSourceNode:      source.node.UUID,
		solution.ParamDestinationNode: dest.UUID,
	})
	w.Logger.Info("planned migration",
		zap.String("instance", inst.UUID),
		zap.String("source", source.node.UUID),
		zap.Float64("source_util", source.util),
		zap.String("destination", dest.UUID),
		zap.Float64("destination_util", destinations[0].util))
	return nil
}

// availableNodes returns enabled, online nodes sorted by uuid.
func (w *WorkloadBalance) availableNodes() []*model.ComputeNode {
	var nodes []*model.ComputeNode
	all := w.Model.AllComputeNodes()
	for _, id := range w.Model.NodeUUIDs() {
		if n := all[id]; n.Available() {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (w *WorkloadBalance) capacity(n *model.ComputeNode) float64 {
	if w.meter == datasource.MeterMemoryResident {
		return float64(n.MemoryMB)
	}
	return float64(n.VCPUs)
}

type instanceQuery struct {
	node  int
	inst  *model.Instance
	value float64
	ok    bool
}

// groupHostsByUtil computes per-node workload and splits nodes by threshold.
// It also returns the cluster average workload and the per-instance workload
// cache. Instances whose metric cannot be read are skipped.
func (w *WorkloadBalance) groupHostsByUtil(ctx context.Context) (overloaded, underloaded []hostLoad, avg float64, cache map[string]float64, err error) {
	nodes := w.availableNodes()
	if len(nodes) == 0 {
		return nil, nil, 0, nil, strategy.ErrClusterEmpty
	}

	var queries []*instanceQuery
	for i, n := range nodes {
		insts, err := w.Model.NodeInstances(n)
		if err != nil {
			return nil, nil, 0, nil, err
		}
		for _, inst := range insts {
			queries = append(queries, &instanceQuery{node: i, inst: inst})
		}
	}

	if err := w.queryWorkloads(ctx, queries); err != nil {
		return nil, nil, 0, nil, err
	}

	cache = make(map[string]float64, len(queries))
	loads := make([]hostLoad, len(nodes))
	for i, n := range nodes {
		loads[i].node = n
	}
	for _, q := range queries {
		if !q.ok {
			continue
		}
		var workload float64
		if w.meter == datasource.MeterCPUUtil {
			workload = q.value * float64(q.inst.VCPUs) / 100
		} else {
			workload = q.value
		}
		cache[q.inst.UUID] = workload
		loads[q.node].workload += workload
	}

	var total float64
	for i := range loads {
		total += loads[i].workload
		if c := w.capacity(loads[i].node); c > 0 {
			loads[i].util = loads[i].workload / c * 100
		}
		if loads[i].util >= w.threshold {
			overloaded = append(overloaded, loads[i])
		} else {
			underloaded = append(underloaded, loads[i])
		}
	}

	avg = total / float64(len(nodes))
	return overloaded, underloaded, avg, cache, nil
}

// queryWorkloads fills each query's value. A failure only affects its own
// instance; the returned error is non-nil only when ctx is done.
func (w *WorkloadBalance) queryWorkloads(ctx context.Context, queries []*instanceQuery) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := w.Parallelism
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for _, q := range queries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := w.Datasource.StatisticAggregation(gctx, datasource.Query{
				ResourceID:  q.inst.UUID,
				Meter:       w.meter,
				Period:      w.period,
				Granularity: w.granularity,
				Aggregation: datasource.AggregationMean,
				End:         w.Now(),
			})
			switch {
			case err == nil:
				q.value, q.ok = v, true
			case errors.Is(err, datasource.ErrNoData):
				w.Logger.Debug("instance has no data",
					zap.String("instance", q.inst.UUID),
					zap.String("meter", string(w.meter)))
				w.Diagnostics.Record(strategy.Skip{ResourceID: q.inst.UUID, Reason: strategy.SkipNoData, Err: err})
			default:
				w.Logger.Error("can not get metric for instance",
					zap.String("instance", q.inst.UUID),
					zap.String("meter", string(w.meter)),
					zap.String("datasource", w.Datasource.Name()),
					zap.Error(err))
				w.Diagnostics.Record(strategy.Skip{ResourceID: q.inst.UUID, Reason: strategy.SkipQueryFailed, Err: err})
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// chooseInstanceToMigrate picks, on the first overloaded host that has any
// instances, the active instance whose removal leaves the host's excess over
// the average smallest but non-negative. Later hosts are not considered.
func (w *WorkloadBalance) chooseInstanceToMigrate(hosts []hostLoad, avg float64, cache map[string]float64) (*hostLoad, *model.Instance) {
	for i := range hosts {
		src := &hosts[i]
		insts, err := w.Model.NodeInstances(src.node)
		if err != nil || len(insts) == 0 {
			w.Logger.Info("no instances found on node", zap.String("node", src.node.UUID))
			w.Diagnostics.Record(strategy.Skip{NodeID: src.node.UUID, Reason: strategy.SkipNodeEmpty})
			continue
		}

		delta := src.workload - avg
		minDelta := math.Inf(1)
		var chosen *model.Instance
		for _, inst := range insts {
			if !inst.Active() {
				w.Logger.Debug("instance not active, skipped", zap.String("instance", inst.UUID))
				w.Diagnostics.Record(strategy.Skip{ResourceID: inst.UUID, NodeID: src.node.UUID, Reason: strategy.SkipNotActive})
				continue
			}
			load, ok := cache[inst.UUID]
			if !ok {
				w.Logger.Debug("instance has no computed workload, skipped", zap.String("instance", inst.UUID))
				continue
			}
			if current := delta - load; current >= 0 && current < minDelta {
				minDelta = current
				chosen = inst
			}
		}
		if chosen == nil {
			return nil, nil
		}

		resolved, err := w.Model.InstanceByUUID(chosen.UUID)
		if err != nil {
			w.Logger.Error("instance not found", zap.String("instance", chosen.UUID), zap.Error(err))
			w.Diagnostics.Record(strategy.Skip{ResourceID: chosen.UUID, NodeID: src.node.UUID, Reason: strategy.SkipInstanceNotFound, Err: err})
			return nil, nil
		}
		return src, resolved
	}
	return nil, nil
}

// filterDestinationHosts keeps hosts with enough free flavor capacity for
// inst that would stay under the threshold after receiving its workload.
func (w *WorkloadBalance) filterDestinationHosts(hosts []hostLoad, inst *model.Instance, cache map[string]float64) ([]hostLoad, error) {
	required := inst.Demand()
	instLoad := cache[inst.UUID]

	var out []hostLoad
	for _, h := range hosts {
		used, err := w.Model.UsedResources(h.node)
		if err != nil {
			return nil, err
		}
		available := h.node.Capacity().Sub(used)
		if !required.FitsIn(available) {
			continue
		}
		if instLoad+h.workload < w.threshold/100*w.capacity(h.node) {
			out = append(out, h)
		}
	}
	return out, nil
}
