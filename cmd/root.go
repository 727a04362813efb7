package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/config"
	"github.com/guimove/hostbalance/internal/logging"
)

var (
	cfgFile string
	cfg     config.Config
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "hostbalance",
	Short: "Workload balance audits for virtualized compute clusters",
	Long: `hostbalance loads a compute cluster inventory, reads per-instance
utilization from Prometheus, CloudWatch or a static file, and plans live
migrations that move load off hosts running above a utilization threshold.

It only proposes actions; nothing is applied to the cluster.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		l, err := logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
// Interrupts cancel in-flight metric queries.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: hostbalance.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	// Global flags that map to config
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("snapshot", "", "cluster snapshot JSON file")
	rootCmd.PersistentFlags().String("prometheus-url", "", "Prometheus/Thanos endpoint URL")
	rootCmd.PersistentFlags().String("kubeconfig", "", "path to kubeconfig file")
	rootCmd.PersistentFlags().String("kube-context", "", "Kubernetes context name")
	rootCmd.PersistentFlags().BoolP("discover", "d", false, "auto-discover Prometheus endpoint from Kubernetes")
	rootCmd.PersistentFlags().String("discovery-namespace", "", "limit service discovery to a namespace")
	rootCmd.PersistentFlags().String("cache", "none", "metric cache: none, file, redis")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("inventory.snapshot_path", rootCmd.PersistentFlags().Lookup("snapshot"))
	_ = viper.BindPFlag("datasources.prometheus.url", rootCmd.PersistentFlags().Lookup("prometheus-url"))
	_ = viper.BindPFlag("kubernetes.kubeconfig", rootCmd.PersistentFlags().Lookup("kubeconfig"))
	_ = viper.BindPFlag("kubernetes.context", rootCmd.PersistentFlags().Lookup("kube-context"))
	_ = viper.BindPFlag("datasources.prometheus.discover", rootCmd.PersistentFlags().Lookup("discover"))
	_ = viper.BindPFlag("datasources.prometheus.namespace", rootCmd.PersistentFlags().Lookup("discovery-namespace"))
	_ = viper.BindPFlag("cache.type", rootCmd.PersistentFlags().Lookup("cache"))

	// Credentials usually come from the environment only.
	for _, key := range []string{"vsphere.host", "vsphere.username", "vsphere.password", "cache.redis.password"} {
		_ = viper.BindEnv(key)
	}
}

func loadConfig() error {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	cfg = config.Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("hostbalance")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.hostbalance")
	}

	viper.SetEnvPrefix("HOSTBALANCE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	return cfg.Validate()
}
