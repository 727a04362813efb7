package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guimove/hostbalance/internal/strategy"
	"github.com/guimove/hostbalance/internal/strategy/builtin"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies [name]",
	Short: "List registered strategies or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStrategies,
}

func init() {
	strategiesCmd.Flags().String("output", "table", "output format: table, json")
	rootCmd.AddCommand(strategiesCmd)
}

type strategyInfo struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	Parameters  strategy.Schema      `json:"parameters"`
	ConfigOpts  []strategy.ConfigOpt `json:"config_opts,omitempty"`
}

func runStrategies(cmd *cobra.Command, args []string) error {
	reg := builtin.Registry()

	names := reg.Names()
	if len(args) == 1 {
		names = args
	}

	infos := make([]strategyInfo, 0, len(names))
	for _, n := range names {
		d, err := reg.Describe(n)
		if err != nil {
			return err
		}
		infos = append(infos, strategyInfo{
			Name:        d.Name,
			DisplayName: d.DisplayName,
			Parameters:  d.Schema,
			ConfigOpts:  d.ConfigOpts,
		})
	}

	if outputFmt, _ := cmd.Flags().GetString("output"); outputFmt == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if len(args) == 0 {
		fmt.Fprintf(os.Stdout, "%-24s %s\n", "NAME", "DISPLAY NAME")
		fmt.Fprintf(os.Stdout, "%s\n", strings.Repeat("-", 60))
		for _, info := range infos {
			fmt.Fprintf(os.Stdout, "%-24s %s\n", info.Name, info.DisplayName)
		}
		return nil
	}
	describeStrategy(os.Stdout, infos[0])
	return nil
}

func describeStrategy(w io.Writer, info strategyInfo) {
	fmt.Fprintf(w, "%s (%s)\n\n", info.DisplayName, info.Name)
	fmt.Fprintf(w, "Parameters:\n")
	for _, p := range info.Parameters {
		line := fmt.Sprintf("  %-14s %-8s default=%v", p.Name, p.Type, p.Default)
		if p.Minimum != nil {
			line += fmt.Sprintf(" min=%v", *p.Minimum)
		}
		if p.Maximum != nil {
			line += fmt.Sprintf(" max=%v", *p.Maximum)
		}
		if len(p.Choices) > 0 {
			line += fmt.Sprintf(" choices=%v", p.Choices)
		}
		fmt.Fprintln(w, line)
		if p.Description != "" {
			fmt.Fprintf(w, "      %s\n", p.Description)
		}
	}
	if len(info.ConfigOpts) == 0 {
		return
	}
	fmt.Fprintf(w, "\nConfig options:\n")
	for _, o := range info.ConfigOpts {
		fmt.Fprintf(w, "  %-14s %-8s default=%v", o.Name, o.Type, o.Default)
		if len(o.Choices) > 0 {
			fmt.Fprintf(w, " choices=%v", o.Choices)
		}
		fmt.Fprintln(w)
		if o.Help != "" {
			fmt.Fprintf(w, "      %s\n", o.Help)
		}
	}
}
