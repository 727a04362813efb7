// Package dummy provides a strategy that emits a fixed plan. It performs no
// optimization and exists to exercise actuators and reporting end to end.
package dummy

import (
	"context"

	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/solution"
	"github.com/guimove/hostbalance/internal/strategy"
)

const (
	Name        = "dummy_with_resize"
	DisplayName = "Dummy strategy with resize"
)

// Schema declares two example parameters that only appear in the debug log.
func Schema() strategy.Schema {
	return strategy.Schema{
		{
			Name:        "para1",
			Description: "number parameter example",
			Type:        strategy.TypeNumber,
			Default:     3.2,
			Minimum:     strategy.Bound(1.0),
			Maximum:     strategy.Bound(10.2),
		},
		{
			Name:        "para2",
			Description: "string parameter example",
			Type:        strategy.TypeString,
			Default:     "hello",
		},
	}
}

// Descriptor registers the dummy strategy. It needs no meters.
func Descriptor() strategy.Descriptor {
	return strategy.Descriptor{
		Name:                    Name,
		DisplayName:             DisplayName,
		TranslatableDisplayName: DisplayName,
		Schema:                  Schema(),
		Factory: func(deps strategy.Deps, params strategy.Parameters) (strategy.Strategy, error) {
			return New(deps, params), nil
		},
	}
}

// DummyWithResize plans nop, sleep, migrate and resize actions regardless of
// the cluster state.
type DummyWithResize struct {
	strategy.Base
}

var _ strategy.Strategy = (*DummyWithResize)(nil)

// New creates the strategy with bound parameters.
func New(deps strategy.Deps, params strategy.Parameters) *DummyWithResize {
	return &DummyWithResize{Base: strategy.NewBase(Name, deps, params)}
}

func (d *DummyWithResize) Name() string { return Name }
func (d *DummyWithResize) DisplayName() string { return DisplayName }
func (d *DummyWithResize) TranslatableDisplayName() string { return DisplayName }
func (d *DummyWithResize) Schema() strategy.Schema { return Schema() }
func (d *DummyWithResize) ConfigOpts() []strategy.ConfigOpt { return nil }

// DoExecute appends the fixed action list.
func (d *DummyWithResize) DoExecute(ctx context.Context) error {
	d.Logger.Debug("executing dummy strategy",
		zap.Float64("para1", d.Params.Float("para1")),
		zap.String("para2", d.Params.String("para2")))

	sol := d.Solution()
	sol.AddAction(solution.ActionNop, "", map[string]any{"message": "hello World"})
	sol.AddAction(solution.ActionNop, "", map[string]any{"message": "Welcome"})
	sol.AddAction(solution.ActionSleep, "", map[string]any{"duration": 5.0})

	for _, id := range []string{"b199db0c-1408-4d52-b5a5-5ca14de0ff36", "8db1b3c1-7938-4c34-8c03-6de14b874f8f"} {
		sol.AddAction(solution.ActionMigrate, id, map[string]any{
			solution.ParamSourceNode:      "compute2",
			solution.ParamDestinationNode: "compute3",
			solution.ParamMigrationType:   solution.MigrationLive,
		})
	}
	sol.AddAction(solution.ActionResize, "8db1b3c1-7938-4c34-8c03-6de14b874f8f", map[string]any{"flavor": "x2"})
	return nil
}

// PostExecute leaves the solution without a model.
func (d *DummyWithResize) PostExecute(ctx context.Context) error { return nil }
