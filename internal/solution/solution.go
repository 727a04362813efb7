// Package solution accumulates the ordered action plan produced by a strategy.
package solution

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/guimove/hostbalance/internal/model"
)

// ActionType names the kind of change an actuator should apply. The set is
// open; the constants below are the types emitted by the built-in strategies.
type ActionType string

const (
	ActionMigrate ActionType = "migrate"
	ActionResize  ActionType = "resize"
	ActionNop     ActionType = "nop"
	ActionSleep   ActionType = "sleep"
)

// Well-known input parameter keys for migrate actions.
const (
	ParamMigrationType   = "migration_type"
	ParamSourceNode      = "source_node"
	ParamDestinationNode = "destination_node"

	MigrationLive = "live"
)

// Action is a single recommended change.
type Action struct {
	ID         string         `json:"id"`
	Type       ActionType     `json:"action_type"`
	ResourceID string         `json:"resource_id,omitempty"`
	Input      map[string]any `json:"input_parameters,omitempty"`
}

// Solution is the ordered list of actions proposed by one strategy run,
// together with the cluster model as the strategy left it.
type Solution struct {
	StrategyName string
	Model        *model.ClusterModel

	actions []Action
	sealed  bool
}

// New returns an empty solution for the named strategy.
func New(strategyName string) *Solution {
	return &Solution{StrategyName: strategyName}
}

// AddAction appends an action. Order is preserved and duplicates are kept.
// Input is copied so later caller mutations do not leak into the plan.
// Calling AddAction on a sealed solution panics.
func (s *Solution) AddAction(actionType ActionType, resourceID string, input map[string]any) Action {
	if s.sealed {
		panic("solution: AddAction on sealed solution")
	}
	var params map[string]any
	if input != nil {
		params = make(map[string]any, len(input))
		for k, v := range input {
			params[k] = v
		}
	}
	a := Action{
		ID:         uuid.NewString(),
		Type:       actionType,
		ResourceID: resourceID,
		Input:      params,
	}
	s.actions = append(s.actions, a)
	return a
}

// Actions returns a copy of the action list in insertion order.
func (s *Solution) Actions() []Action {
	out := make([]Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Len returns the number of actions.
func (s *Solution) Len() int { return len(s.actions) }

// CountByType tallies actions per type.
func (s *Solution) CountByType() map[ActionType]int {
	counts := make(map[ActionType]int)
	for _, a := range s.actions {
		counts[a.Type]++
	}
	return counts
}

// Seal freezes the solution once the strategy lifecycle has finished.
func (s *Solution) Seal() { s.sealed = true }

// Sealed reports whether the solution has been frozen.
func (s *Solution) Sealed() bool { return s.sealed }

type jsonSolution struct {
	Strategy string          `json:"strategy"`
	Actions  []Action        `json:"actions"`
	Model    *model.Snapshot `json:"model,omitempty"`
}

// MarshalJSON encodes the actions and, when attached, the final model.
func (s *Solution) MarshalJSON() ([]byte, error) {
	out := jsonSolution{Strategy: s.StrategyName, Actions: s.Actions()}
	if s.Model != nil {
		snap := s.Model.Snapshot()
		out.Model = &snap
	}
	return json.Marshal(out)
}
