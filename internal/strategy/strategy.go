// Package strategy defines the optimization strategy contract, parameter
// schemas, the three-phase execution lifecycle and the strategy registry.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/datasource"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
)

var (
	ErrClusterStateNotDefined = errors.New("cluster model is not defined")
	ErrClusterStateStale      = errors.New("cluster model is stale")
	ErrClusterEmpty           = errors.New("no available compute nodes in cluster")
	ErrUnknownStrategy        = errors.New("unknown strategy")
	ErrAlreadyExecuted        = errors.New("strategy instance already executed")
)

// Strategy is a pluggable optimization algorithm. Implementations embed Base,
// which supplies the model, parameters, logger, solution and lifecycle state.
type Strategy interface {
	Name() string
	DisplayName() string
	TranslatableDisplayName() string
	Schema() Schema
	ConfigOpts() []ConfigOpt

	PreExecute(ctx context.Context) error
	DoExecute(ctx context.Context) error
	PostExecute(ctx context.Context) error

	Solution() *solution.Solution
	Phase() Phase
	setPhase(Phase)
}

// ConfigOpt is a deployment-level option a strategy declares. The framework
// exposes it; the strategy interprets it.
type ConfigOpt struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Default any      `json:"default,omitempty"`
	Choices []string `json:"choices,omitempty"`
	Help    string   `json:"help"`
}

// Deps are the collaborators handed to a strategy at construction.
type Deps struct {
	Model      *model.ClusterModel
	Datasource datasource.Datasource
	Logger     *zap.Logger
	Now        func() time.Time

	// Parallelism bounds concurrent metric queries; values below 1 mean sequential.
	Parallelism int
}

// Base carries the state shared by every strategy.
type Base struct {
	Model       *model.ClusterModel
	Datasource  datasource.Datasource
	Params      Parameters
	Logger      *zap.Logger
	Diagnostics *Diagnostics
	Now         func() time.Time
	Parallelism int

	solution *solution.Solution
	phase    Phase
}

// NewBase wires deps into a Base for the named strategy.
func NewBase(name string, deps Deps, params Parameters) Base {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return Base{
		Model:       deps.Model,
		Datasource:  deps.Datasource,
		Params:      params,
		Logger:      logger.With(zap.String("strategy", name)),
		Diagnostics: NewDiagnostics(),
		Now:         now,
		Parallelism: deps.Parallelism,
		solution:    solution.New(name),
		phase:       PhaseCreated,
	}
}

// Solution returns the solution under construction.
func (b *Base) Solution() *solution.Solution { return b.solution }

// Phase returns the lifecycle phase reached so far.
func (b *Base) Phase() Phase { return b.phase }

func (b *Base) setPhase(p Phase) { b.phase = p }

// CheckModel fails if the model is missing or stale.
func (b *Base) CheckModel() error {
	if b.Model == nil {
		return ErrClusterStateNotDefined
	}
	if b.Model.Stale() {
		return ErrClusterStateStale
	}
	return nil
}

// PreExecute validates the cluster model.
func (b *Base) PreExecute(ctx context.Context) error {
	if err := b.CheckModel(); err != nil {
		return err
	}
	b.Logger.Debug("initializing strategy",
		zap.Int("nodes", len(b.Model.AllComputeNodes())))
	return nil
}

// PostExecute attaches the (possibly modified) model to the solution.
func (b *Base) PostExecute(ctx context.Context) error {
	b.solution.Model = b.Model
	if b.Model != nil {
		b.Logger.Debug("final cluster model", zap.Stringer("model", b.Model))
	}
	return nil
}

// RequireDatasource fails when the strategy was built without a datasource.
func (b *Base) RequireDatasource() error {
	if b.Datasource == nil {
		return fmt.Errorf("%w: strategy requires a datasource", datasource.ErrNoDatasource)
	}
	return nil
}
