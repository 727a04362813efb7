package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/guimove/hostbalance/internal/datasource"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
	"github.com/guimove/hostbalance/internal/strategy"
	"github.com/guimove/hostbalance/internal/strategy/builtin"
)

type stubInventory struct {
	model *model.ClusterModel
	err   error
	loads int
}

func (s *stubInventory) Name() string { return "stub" }

func (s *stubInventory) Load(ctx context.Context) (*model.ClusterModel, error) {
	s.loads++
	return s.model, s.err
}

func ptr(v float64) *float64 { return &v }

// cluster: n1 holds 32 of 40 vCPUs of load, n2 and n3 are nearly idle.
func cluster(t *testing.T) (*model.ClusterModel, datasource.StaticValues) {
	t.Helper()
	snap := model.Snapshot{Nodes: []model.SnapshotNode{
		{
			ComputeNode: model.ComputeNode{UUID: "n1", VCPUs: 40, MemoryMB: 65536, DiskGB: 1000, State: model.ServiceEnabled, Status: model.StatusOnline},
			Instances: []model.Instance{
				{UUID: "i1", VCPUs: 7, MemoryMB: 512, DiskGB: 10, State: model.InstanceActive},
				{UUID: "i2", VCPUs: 3, MemoryMB: 512, DiskGB: 10, State: model.InstanceActive},
				{UUID: "i3", VCPUs: 30, MemoryMB: 512, DiskGB: 10, State: model.InstanceActive},
			},
		},
		{
			ComputeNode: model.ComputeNode{UUID: "n2", VCPUs: 40, MemoryMB: 65536, DiskGB: 1000, State: model.ServiceEnabled, Status: model.StatusOnline},
			Instances:   []model.Instance{{UUID: "i4", VCPUs: 16, MemoryMB: 512, DiskGB: 10, State: model.InstanceActive}},
		},
		{
			ComputeNode: model.ComputeNode{UUID: "n3", VCPUs: 40, MemoryMB: 65536, DiskGB: 1000, State: model.ServiceEnabled, Status: model.StatusOnline},
			Instances:   []model.Instance{{UUID: "i5", VCPUs: 12, MemoryMB: 512, DiskGB: 10, State: model.InstanceActive}},
		},
	}}
	m, err := snap.Build()
	require.NoError(t, err)

	cpu := datasource.MeterCPUUtil
	values := datasource.StaticValues{
		"i1": {cpu: ptr(50)},
		"i2": {cpu: ptr(100)},
		"i3": {cpu: ptr(85)},
		"i4": {cpu: ptr(50)},
		"i5": {cpu: ptr(50)},
	}
	return m, values
}

func newAuditor(t *testing.T, inv *stubInventory, backends ...datasource.Datasource) (*Auditor, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := zaptest.NewLogger(t)
	a := New(inv, datasource.NewManager(logger, backends...), builtin.Registry(), logger)
	a.Metrics = NewMetrics(reg)
	a.Parallelism = 4
	return a, reg
}

func TestRun_WorkloadBalance(t *testing.T) {
	m, values := cluster(t)
	inv := &stubInventory{model: m}
	a, _ := newAuditor(t, inv, datasource.NewStaticFromValues(values))

	res, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	require.NoError(t, err)

	assert.Equal(t, "workload_balance", res.Strategy)
	assert.Equal(t, "static", res.Datasource)
	assert.Equal(t, 1, inv.loads)
	require.True(t, res.Solution.Sealed())

	actions := res.Solution.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, solution.ActionMigrate, actions[0].Type)
	assert.Equal(t, "i1", actions[0].ResourceID)
	assert.Equal(t, "n3", actions[0].Input[solution.ParamDestinationNode])
	assert.Empty(t, res.Skips)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Runs.WithLabelValues("workload_balance", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Actions.WithLabelValues("workload_balance", "migrate")))
	assert.Equal(t, 1, testutil.CollectAndCount(a.Metrics.Duration))
}

func TestRun_InvalidParametersSkipsInventory(t *testing.T) {
	m, values := cluster(t)
	inv := &stubInventory{model: m}
	a, _ := newAuditor(t, inv, datasource.NewStaticFromValues(values))

	_, err := a.Run(context.Background(), Request{
		Strategy:   "workload_balance",
		Parameters: map[string]any{"threshold": 150.0},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrInvalidParameters)
	assert.Equal(t, 0, inv.loads)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Runs.WithLabelValues("workload_balance", OutcomeInvalidParameter)))
}

func TestRun_UnknownStrategy(t *testing.T) {
	a, _ := newAuditor(t, &stubInventory{model: model.NewClusterModel()})

	_, err := a.Run(context.Background(), Request{Strategy: "basic_consolidation"})
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Runs.WithLabelValues("basic_consolidation", OutcomeFailed)))
}

func TestRun_InventoryError(t *testing.T) {
	boom := errors.New("vcenter down")
	a, _ := newAuditor(t, &stubInventory{err: boom})

	res, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Nil(t, res.Solution)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Runs.WithLabelValues("workload_balance", OutcomeFailed)))
}

func TestRun_NoReachableDatasource(t *testing.T) {
	m, _ := cluster(t)
	missing := datasource.NewStatic(filepath.Join(t.TempDir(), "absent.json"))
	a, _ := newAuditor(t, &stubInventory{model: m}, missing)

	_, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	assert.ErrorIs(t, err, datasource.ErrNoDatasource)
}

func TestRun_NilManagerWithMeters(t *testing.T) {
	m, _ := cluster(t)
	a := New(&stubInventory{model: m}, nil, builtin.Registry(), nil)

	_, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	assert.ErrorIs(t, err, datasource.ErrNoDatasource)
}

func TestRun_EmptyClusterFails(t *testing.T) {
	_, values := cluster(t)
	a, _ := newAuditor(t, &stubInventory{model: model.NewClusterModel()}, datasource.NewStaticFromValues(values))

	_, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	assert.ErrorIs(t, err, strategy.ErrClusterEmpty)
}

func TestRun_SkipsAreCounted(t *testing.T) {
	m, values := cluster(t)
	values["i2"] = map[datasource.Meter]*float64{datasource.MeterCPUUtil: nil}
	a, _ := newAuditor(t, &stubInventory{model: m}, datasource.NewStaticFromValues(values))

	res, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	require.NoError(t, err)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, strategy.SkipNoData, res.Skips[0].Reason)
	assert.Equal(t, "i2", res.Skips[0].ResourceID)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics.Skipped.WithLabelValues("workload_balance", string(strategy.SkipNoData))))
}

func TestRun_DummyNeedsNoDatasource(t *testing.T) {
	a := New(&stubInventory{model: model.NewClusterModel()}, nil, builtin.Registry(), nil)
	a.Metrics = NewMetrics(nil)

	res, err := a.Run(context.Background(), Request{Strategy: "dummy_with_resize"})
	require.NoError(t, err)
	assert.Empty(t, res.Datasource)
	assert.Equal(t, 6, res.Solution.Len())

	counts := res.Solution.CountByType()
	assert.Equal(t, 2, counts[solution.ActionNop])
	assert.Equal(t, 2, counts[solution.ActionMigrate])
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Metrics.Actions.WithLabelValues("dummy_with_resize", "nop")))
}

func TestRun_Duration(t *testing.T) {
	m, values := cluster(t)
	a, _ := newAuditor(t, &stubInventory{model: m}, datasource.NewStaticFromValues(values))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	a.Now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	res, err := a.Run(context.Background(), Request{Strategy: "workload_balance"})
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Second), res.StartedAt)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.observe("x", OutcomeSuccess, time.Second, solution.New("x"), nil)
}
