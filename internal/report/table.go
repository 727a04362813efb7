package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/guimove/hostbalance/internal/audit"
	"github.com/guimove/hostbalance/internal/model"
	"github.com/guimove/hostbalance/internal/solution"
)

// TableReporter outputs an audit result as a formatted terminal table.
type TableReporter struct {
	w io.Writer
}

// Report writes a header block, the action table and any skipped resources.
func (r *TableReporter) Report(ctx context.Context, res *audit.Result) error {
	fmt.Fprintf(r.w, "\n")
	fmt.Fprintf(r.w, "Audit: %s\n", res.DisplayName)
	fmt.Fprintf(r.w, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(r.w, "Strategy:    %s\n", res.Strategy)
	fmt.Fprintf(r.w, "Datasource:  %s\n", orDash(res.Datasource))
	if res.Model != nil {
		fmt.Fprintf(r.w, "Nodes:       %d\n", len(res.Model.AllComputeNodes()))
	}
	if params := res.Parameters.Map(); len(params) > 0 {
		fmt.Fprintf(r.w, "Parameters:  %s\n", formatInput(params))
	}
	fmt.Fprintf(r.w, "Duration:    %s\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.w, "%s\n\n", strings.Repeat("=", 60))

	var actions []solution.Action
	if res.Solution != nil {
		actions = res.Solution.Actions()
	}
	if len(actions) == 0 {
		fmt.Fprintf(r.w, "No actions planned.\n")
	} else {
		fmt.Fprintf(r.w, "%-4s %-8s %-38s %-14s %-14s %s\n",
			"#", "Action", "Resource", "Source", "Destination", "Input")
		fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))
		for i, a := range actions {
			input := make(map[string]any, len(a.Input))
			for k, v := range a.Input {
				input[k] = v
			}
			src := popString(input, solution.ParamSourceNode)
			dst := popString(input, solution.ParamDestinationNode)
			fmt.Fprintf(r.w, "%-4d %-8s %-38s %-14s %-14s %s\n",
				i+1, a.Type, orDash(a.ResourceID), orDash(src), orDash(dst), formatInput(input))
		}
		fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))
	}

	if len(res.Skips) > 0 {
		fmt.Fprintf(r.w, "\nSkipped (%d):\n", len(res.Skips))
		for _, s := range res.Skips {
			line := fmt.Sprintf("  %-38s %-18s", s.ResourceID, s.Reason)
			if s.NodeID != "" {
				line += " node=" + s.NodeID
			}
			if s.Err != nil {
				line += " err=" + s.Err.Error()
			}
			fmt.Fprintln(r.w, strings.TrimRight(line, " "))
		}
	}
	return nil
}

// WriteInventory prints nodes with their capacity, flavor usage and hosted
// instances.
func WriteInventory(w io.Writer, m *model.ClusterModel) error {
	fmt.Fprintf(w, "%-20s %-9s %-12s %12s %16s %14s %5s\n",
		"Node", "State", "Status", "vCPUs", "Memory MB", "Disk GB", "VMs")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 95))

	for _, id := range m.NodeUUIDs() {
		n, err := m.NodeByUUID(id)
		if err != nil {
			return err
		}
		used, err := m.UsedResources(n)
		if err != nil {
			return err
		}
		insts, err := m.NodeInstances(n)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%-20s %-9s %-12s %12s %16s %14s %5d\n",
			truncate(id, 20), n.State, n.Status,
			fmt.Sprintf("%d/%d", used.VCPUs, n.VCPUs),
			fmt.Sprintf("%d/%d", used.MemoryMB, n.MemoryMB),
			fmt.Sprintf("%d/%d", used.DiskGB, n.DiskGB),
			len(insts))
		for _, inst := range insts {
			fmt.Fprintf(w, "  %-38s %-10s vcpus=%d memory_mb=%d disk_gb=%d\n",
				inst.UUID, inst.State, inst.VCPUs, inst.MemoryMB, inst.DiskGB)
		}
	}
	return nil
}

func popString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	return fmt.Sprint(v)
}

func formatInput(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m[k])
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
