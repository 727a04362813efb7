package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration for hostbalance.
type Config struct {
	Inventory   InventoryConfig   `mapstructure:"inventory" yaml:"inventory"`
	VSphere     VSphereConfig     `mapstructure:"vsphere" yaml:"vsphere"`
	Kubernetes  KubernetesConfig  `mapstructure:"kubernetes" yaml:"kubernetes"`
	Datasources DatasourcesConfig `mapstructure:"datasources" yaml:"datasources"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Strategy    StrategyConfig    `mapstructure:"strategy" yaml:"strategy"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Output      OutputConfig      `mapstructure:"output" yaml:"output"`
}

type InventoryConfig struct {
	Source       string `mapstructure:"source" yaml:"source"` // snapshot or vsphere
	SnapshotPath string `mapstructure:"snapshot_path" yaml:"snapshot_path"`
}

type VSphereConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	Datacenter string `mapstructure:"datacenter" yaml:"datacenter"`
	Insecure   bool   `mapstructure:"insecure" yaml:"insecure"`
}

type KubernetesConfig struct {
	Kubeconfig string `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	Context    string `mapstructure:"context" yaml:"context"`
}

type DatasourcesConfig struct {
	// Order lists backends by preference; the first one that answers wins.
	Order      []string         `mapstructure:"order" yaml:"order"`
	Prometheus PrometheusConfig `mapstructure:"prometheus" yaml:"prometheus"`
	CloudWatch CloudWatchConfig `mapstructure:"cloudwatch" yaml:"cloudwatch"`
	Static     StaticConfig     `mapstructure:"static" yaml:"static"`
}

type PrometheusConfig struct {
	URL       string            `mapstructure:"url" yaml:"url"`
	Timeout   time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	Discover  bool              `mapstructure:"discover" yaml:"discover"`
	Namespace string            `mapstructure:"namespace" yaml:"namespace"` // empty = all namespaces
	Metrics   map[string]string `mapstructure:"metrics" yaml:"metrics"`     // meter -> series name
	Label     string            `mapstructure:"label" yaml:"label"`
}

type CloudWatchConfig struct {
	Region    string            `mapstructure:"region" yaml:"region"`
	Namespace string            `mapstructure:"namespace" yaml:"namespace"`
	Metrics   map[string]string `mapstructure:"metrics" yaml:"metrics"`
}

type StaticConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type CacheConfig struct {
	Type  string        `mapstructure:"type" yaml:"type"` // none, file or redis
	TTL   time.Duration `mapstructure:"ttl" yaml:"ttl"`
	Dir   string        `mapstructure:"dir" yaml:"dir"`
	Redis RedisConfig   `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

type StrategyConfig struct {
	Name        string         `mapstructure:"name" yaml:"name"`
	Parameters  map[string]any `mapstructure:"parameters" yaml:"parameters"`
	Parallelism int            `mapstructure:"parallelism" yaml:"parallelism"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

type OutputConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	// MetricsFile receives the audit run metrics in Prometheus text format,
	// typically a node_exporter textfile collector path.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Inventory: InventoryConfig{
			Source: "snapshot",
		},
		Datasources: DatasourcesConfig{
			Order: []string{"prometheus", "cloudwatch", "static"},
			Prometheus: PrometheusConfig{
				Timeout: 60 * time.Second,
			},
			CloudWatch: CloudWatchConfig{
				Region:    detectRegion(),
				Namespace: "AWS/EC2",
			},
		},
		Cache: CacheConfig{
			Type: "none",
			TTL:  5 * time.Minute,
			Dir:  home + "/.hostbalance/cache",
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		Strategy: StrategyConfig{
			Name:        "workload_balance",
			Parallelism: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Output: OutputConfig{
			Format: "table",
		},
	}
}

// Validate checks the config for consistency.
func (c *Config) Validate() error {
	validSources := map[string]bool{"snapshot": true, "vsphere": true}
	if !validSources[c.Inventory.Source] {
		return fmt.Errorf("inventory source must be snapshot or vsphere, got %q", c.Inventory.Source)
	}
	if c.Inventory.Source == "vsphere" && c.VSphere.Host == "" {
		return fmt.Errorf("vsphere inventory requires vsphere.host")
	}

	validBackends := map[string]bool{"prometheus": true, "cloudwatch": true, "static": true}
	if len(c.Datasources.Order) == 0 {
		return fmt.Errorf("datasources.order must name at least one backend")
	}
	seen := make(map[string]bool, len(c.Datasources.Order))
	for _, name := range c.Datasources.Order {
		if !validBackends[name] {
			return fmt.Errorf("datasource must be prometheus, cloudwatch, or static, got %q", name)
		}
		if seen[name] {
			return fmt.Errorf("datasource %q listed twice", name)
		}
		seen[name] = true
	}
	if c.Datasources.Prometheus.Timeout <= 0 {
		return fmt.Errorf("prometheus timeout must be positive, got %v", c.Datasources.Prometheus.Timeout)
	}

	validCaches := map[string]bool{"none": true, "file": true, "redis": true}
	if !validCaches[c.Cache.Type] {
		return fmt.Errorf("cache type must be none, file, or redis, got %q", c.Cache.Type)
	}
	if c.Cache.Type != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %v", c.Cache.TTL)
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy name must not be empty")
	}
	if c.Strategy.Parallelism <= 0 {
		c.Strategy.Parallelism = 1
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("log level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	validFormats := map[string]bool{"table": true, "json": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output format must be table or json, got %q", c.Output.Format)
	}
	return nil
}

// detectRegion checks environment variables for the AWS region.
func detectRegion() string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	if r := os.Getenv("AWS_DEFAULT_REGION"); r != "" {
		return r
	}
	return "us-east-1"
}
