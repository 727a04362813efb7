// Package audit runs a strategy end to end: it loads the cluster model,
// picks a datasource, executes the strategy and records run metrics.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/datasource"
	"github.com/guimove/hostbalance/internal/inventory"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
	"github.com/guimove/hostbalance/internal/strategy"
)

// Request names the strategy to run and its raw parameters.
type Request struct {
	Strategy   string
	Parameters map[string]any
}

// Result is the outcome of one audit.
type Result struct {
	Strategy    string
	DisplayName string
	Parameters  strategy.Parameters
	// Datasource is the backend that served metric queries; empty when the
	// strategy needs none.
	Datasource string
	Model      *model.ClusterModel
	Solution   *solution.Solution
	Skips      []strategy.Skip
	StartedAt  time.Time
	Duration   time.Duration
}

// Auditor coordinates one audit run.
type Auditor struct {
	Inventory   inventory.Source
	Datasources *datasource.Manager
	Registry    *strategy.Registry
	Logger      *zap.Logger
	Metrics     *Metrics
	Parallelism int
	Now         func() time.Time
}

// New creates an auditor with the given dependencies.
func New(inv inventory.Source, dsm *datasource.Manager, reg *strategy.Registry, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		Inventory:   inv,
		Datasources: dsm,
		Registry:    reg,
		Logger:      logger,
		Parallelism: 1,
		Now:         time.Now,
	}
}

// Run executes req. Parameters are validated before anything is loaded.
func (a *Auditor) Run(ctx context.Context, req Request) (*Result, error) {
	start := a.Now()

	desc, params, err := a.Registry.Bind(req.Strategy, req.Parameters)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, strategy.ErrInvalidParameters) {
			outcome = OutcomeInvalidParameter
		}
		a.Metrics.observe(req.Strategy, outcome, a.Now().Sub(start), nil, nil)
		return nil, err
	}

	log := a.Logger.With(zap.String("strategy", desc.Name))
	res := &Result{
		Strategy:    desc.Name,
		DisplayName: desc.DisplayName,
		Parameters:  params,
		StartedAt:   start,
	}

	fail := func(err error) (*Result, error) {
		res.Duration = a.Now().Sub(start)
		a.Metrics.observe(desc.Name, OutcomeFailed, res.Duration, nil, res.Skips)
		log.Error("audit failed", zap.Error(err), zap.Duration("duration", res.Duration))
		return res, err
	}

	log.Info("loading cluster model", zap.String("source", a.Inventory.Name()))
	m, err := a.Inventory.Load(ctx)
	if err != nil {
		return fail(fmt.Errorf("loading inventory: %w", err))
	}
	res.Model = m
	log.Info("cluster model loaded", zap.Int("nodes", len(m.AllComputeNodes())))

	var ds datasource.Datasource
	if desc.Meters != nil {
		meters := desc.Meters(params)
		if len(meters) > 0 {
			if a.Datasources == nil {
				return fail(datasource.ErrNoDatasource)
			}
			ds, err = a.Datasources.Select(ctx, meters...)
			if err != nil {
				return fail(err)
			}
			res.Datasource = ds.Name()
			log.Info("using datasource", zap.String("datasource", ds.Name()))
		}
	}

	s, err := desc.Factory(strategy.Deps{
		Model:       m,
		Datasource:  ds,
		Logger:      a.Logger,
		Now:         a.Now,
		Parallelism: a.Parallelism,
	}, params)
	if err != nil {
		return fail(fmt.Errorf("creating strategy %s: %w", desc.Name, err))
	}

	sol, err := strategy.Execute(ctx, s)
	if dp, ok := s.(strategy.DiagnosticsProvider); ok && dp.Diag() != nil {
		res.Skips = dp.Diag().Skips()
	}
	if err != nil {
		return fail(err)
	}

	res.Solution = sol
	res.Duration = a.Now().Sub(start)
	a.Metrics.observe(desc.Name, OutcomeSuccess, res.Duration, sol, res.Skips)

	log.Info("audit complete",
		zap.Int("actions", sol.Len()),
		zap.Int("skipped", len(res.Skips)),
		zap.Duration("duration", res.Duration))
	return res, nil
}
