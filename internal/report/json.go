package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/guimove/hostbalance/internal/audit"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
)

// JSONReporter outputs an audit result as JSON.
type JSONReporter struct {
	w io.Writer
}

type jsonSkip struct {
	ResourceID string `json:"resource_id"`
	NodeID     string `json:"node_id,omitempty"`
	Reason     string `json:"reason"`
	Error      string `json:"error,omitempty"`
}

type jsonOutput struct {
	Strategy    string            `json:"strategy"`
	DisplayName string            `json:"display_name"`
	Parameters  map[string]any    `json:"parameters"`
	Datasource  string            `json:"datasource,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	DurationSec float64           `json:"duration_seconds"`
	Actions     []solution.Action `json:"actions"`
	Skipped     []jsonSkip        `json:"skipped"`
	Model       *model.Snapshot   `json:"model,omitempty"`
}

func (r *JSONReporter) Report(ctx context.Context, res *audit.Result) error {
	output := jsonOutput{
		Strategy:    res.Strategy,
		DisplayName: res.DisplayName,
		Parameters:  res.Parameters.Map(),
		Datasource:  res.Datasource,
		StartedAt:   res.StartedAt,
		DurationSec: res.Duration.Seconds(),
		Actions:     []solution.Action{},
		Skipped:     make([]jsonSkip, 0, len(res.Skips)),
	}
	if res.Solution != nil {
		output.Actions = res.Solution.Actions()
	}
	for _, s := range res.Skips {
		js := jsonSkip{ResourceID: s.ResourceID, NodeID: s.NodeID, Reason: string(s.Reason)}
		if s.Err != nil {
			js.Error = s.Err.Error()
		}
		output.Skipped = append(output.Skipped, js)
	}
	if res.Model != nil {
		snap := res.Model.Snapshot()
		output.Model = &snap
	}

	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
