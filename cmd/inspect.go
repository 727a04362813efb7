package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/guimove/hostbalance/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Load and display the cluster inventory",
	Long: `Loads the configured inventory (a snapshot file or vCenter) and prints
every compute node with its capacity, the flavor demand of the instances it
hosts, and the instances themselves. The JSON output is a snapshot that can be
fed back to 'hostbalance audit --snapshot'.`,
	RunE: runInspect,
}

func init() {
	f := inspectCmd.Flags()
	f.String("output", "table", "output format: table, json")
	f.String("output-file", "", "write output to file")

	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	src := resolveInventory(cfg, logger)
	m, err := src.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading inventory from %s: %w", src.Name(), err)
	}

	w := os.Stdout
	if outFile, _ := cmd.Flags().GetString("output-file"); outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if outputFmt, _ := cmd.Flags().GetString("output"); outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(m.Snapshot())
	}

	fmt.Fprintf(w, "Inventory: %s (%d nodes)\n\n", src.Name(), len(m.AllComputeNodes()))
	return report.WriteInventory(w, m)
}
