package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/guimove/hostbalance/internal/audit"
	"github.com/guimove/hostbalance/internal/config"
	"github.com/guimove/hostbalance/internal/report"
	"github.com/guimove/hostbalance/internal/strategy/builtin"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a strategy against the cluster and print the action plan",
	Long: `Loads the cluster inventory, selects a datasource for the strategy's
meters and runs the strategy. The resulting actions (for workload_balance, live
migrations off overloaded hosts) are printed; nothing is applied.

Parameters are passed as --param name=value and validated against the
strategy's schema before any inventory or metric is read. Values are parsed as
YAML scalars, so --param threshold=30 is a number and
--param metrics=memory.resident a string.`,
	RunE: runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.String("strategy", "", "strategy name (default from config: workload_balance)")
	f.StringArray("param", nil, "strategy parameter as name=value (repeatable)")
	f.String("output", "", "output format: table, json")
	f.String("output-file", "", "write output to file")
	f.String("metrics-file", "", "write run metrics in Prometheus text format to file")
	_ = viper.BindPFlag("output.metrics_file", f.Lookup("metrics-file"))

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	name := cfg.Strategy.Name
	if s, _ := cmd.Flags().GetString("strategy"); s != "" {
		name = s
	}

	raw, _ := cmd.Flags().GetStringArray("param")
	params, err := parseParams(cfg.Strategy.Parameters, raw)
	if err != nil {
		return err
	}

	format := cfg.Output.Format
	if o, _ := cmd.Flags().GetString("output"); o != "" {
		format = o
	}

	res, err := auditCluster(ctx, cfg, audit.Request{Strategy: name, Parameters: params}, logger)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if outFile, _ := cmd.Flags().GetString("output-file"); outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
		logger.Info("writing report", zap.String("file", outFile))
	}

	return report.NewReporter(format, w).Report(ctx, res)
}

// auditCluster runs one audit with the configured inventory and datasources.
// Run metrics are written to c.Output.MetricsFile, when set, whatever the
// outcome.
func auditCluster(ctx context.Context, c config.Config, req audit.Request, log *zap.Logger) (*audit.Result, error) {
	dsm, cleanup, err := resolveDatasources(ctx, c, log)
	defer cleanup()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	a := audit.New(resolveInventory(c, log), dsm, builtin.Registry(), log)
	a.Parallelism = c.Strategy.Parallelism
	a.Metrics = audit.NewMetrics(reg)

	res, runErr := a.Run(ctx, req)
	if path := c.Output.MetricsFile; path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			log.Warn("failed to write metrics file", zap.String("file", path), zap.Error(err))
		} else {
			log.Debug("wrote metrics file", zap.String("file", path))
		}
	}
	return res, runErr
}

// parseParams overlays name=value flags on the configured parameters.
func parseParams(base map[string]any, flags []string) (map[string]any, error) {
	out := make(map[string]any, len(base)+len(flags))
	for k, v := range base {
		out[k] = v
	}
	for _, kv := range flags {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q: expected name=value", kv)
		}
		var val any
		if err := yaml.Unmarshal([]byte(v), &val); err != nil {
			return nil, fmt.Errorf("invalid --param %s: %w", k, err)
		}
		if val == nil {
			val = v
		}
		out[k] = val
	}
	return out, nil
}
