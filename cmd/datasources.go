package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/config"
	"github.com/guimove/hostbalance/internal/datasource"
	"github.com/guimove/hostbalance/internal/inventory"
	"github.com/guimove/hostbalance/internal/kube"
)

// resolveDatasources builds the backends listed in datasources.order.
// Backends that are not configured are left out; the manager later picks the
// first reachable one. The returned cleanup is never nil.
func resolveDatasources(ctx context.Context, cfg config.Config, log *zap.Logger) (*datasource.Manager, func(), error) {
	var (
		backends []datasource.Datasource
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	cache, closeCache, err := resolveCache(ctx, cfg.Cache, log)
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, closeCache)

	for _, name := range cfg.Datasources.Order {
		var ds datasource.Datasource
		switch name {
		case "prometheus":
			p, stop, err := resolvePrometheus(ctx, cfg, log)
			if err != nil {
				cleanup()
				return nil, func() {}, err
			}
			if p == nil {
				log.Debug("prometheus not configured")
				continue
			}
			cleanups = append(cleanups, stop)
			ds = p
		case "cloudwatch":
			cw, err := datasource.NewCloudWatch(ctx, cfg.Datasources.CloudWatch.Region,
				datasource.WithNamespace(cfg.Datasources.CloudWatch.Namespace),
				datasource.WithCloudWatchMetrics(meterNames(cfg.Datasources.CloudWatch.Metrics)))
			if err != nil {
				log.Warn("cloudwatch unavailable", zap.Error(err))
				continue
			}
			ds = cw
		case "static":
			if cfg.Datasources.Static.Path == "" {
				log.Debug("static datasource not configured")
				continue
			}
			ds = datasource.NewStatic(cfg.Datasources.Static.Path)
		default:
			continue
		}

		if cache != nil {
			ds = datasource.NewCached(ds, cache, log)
		}
		backends = append(backends, ds)
	}

	return datasource.NewManager(log, backends...), cleanup, nil
}

// resolvePrometheus uses the explicit URL, or discovers a metrics service in
// Kubernetes when discovery is on. Outside the cluster the service is reached
// through a port-forward. A nil datasource means Prometheus is not configured.
func resolvePrometheus(ctx context.Context, cfg config.Config, log *zap.Logger) (*datasource.Prometheus, func(), error) {
	pc := cfg.Datasources.Prometheus
	url := pc.URL
	stop := func() {}

	if url == "" {
		if !pc.Discover {
			return nil, stop, nil
		}
		client, err := kube.NewClient(cfg.Kubernetes.Kubeconfig, cfg.Kubernetes.Context)
		if err != nil {
			return nil, stop, fmt.Errorf("connecting to Kubernetes: %w", err)
		}
		ep, err := kube.Discover(ctx, client.Clientset, pc.Namespace, log)
		if err != nil {
			return nil, stop, fmt.Errorf("%w; use --prometheus-url to specify the endpoint manually", err)
		}
		url, stop, err = kube.Resolve(ctx, client, ep, log)
		if err != nil {
			return nil, func() {}, fmt.Errorf("reaching %s/%s: %w", ep.Namespace, ep.Service, err)
		}
	}

	opts := []datasource.PrometheusOption{datasource.WithTimeout(pc.Timeout)}
	if len(pc.Metrics) > 0 {
		opts = append(opts, datasource.WithMetricNames(meterNames(pc.Metrics)))
	}
	if pc.Label != "" {
		opts = append(opts, datasource.WithResourceLabel(pc.Label))
	}
	p, err := datasource.NewPrometheus(url, opts...)
	if err != nil {
		stop()
		return nil, func() {}, err
	}
	return p, stop, nil
}

// resolveCache returns nil when caching is off. An unreachable Redis is
// logged and disables caching rather than failing the run.
func resolveCache(ctx context.Context, cc config.CacheConfig, log *zap.Logger) (datasource.Cache, func(), error) {
	switch cc.Type {
	case "file":
		return datasource.NewFileCache(cc.Dir, cc.TTL), func() {}, nil
	case "redis":
		rc, err := datasource.NewRedisCache(ctx, datasource.RedisConfig{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
		}, cc.TTL)
		if err != nil {
			log.Warn("redis cache unavailable, continuing without cache", zap.Error(err))
			return nil, func() {}, nil
		}
		return rc, func() { _ = rc.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func meterNames(m map[string]string) map[datasource.Meter]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[datasource.Meter]string, len(m))
	for k, v := range m {
		out[meterFromKey(k)] = v
	}
	return out
}

// meterFromKey maps a config key to a meter. Viper splits keys on dots, so
// "memory_resident" is accepted for "memory.resident".
func meterFromKey(k string) datasource.Meter {
	for _, m := range datasource.KnownMeters {
		if k == string(m) || k == strings.ReplaceAll(string(m), ".", "_") {
			return m
		}
	}
	return datasource.Meter(k)
}

func resolveInventory(cfg config.Config, log *zap.Logger) inventory.Source {
	if cfg.Inventory.Source == "vsphere" {
		v := cfg.VSphere
		return inventory.NewVSphereSource(inventory.VSphereCredentials{
			Host:       v.Host,
			Username:   v.Username,
			Password:   v.Password,
			Datacenter: v.Datacenter,
			Insecure:   v.Insecure,
		}, log)
	}
	return inventory.NewSnapshotSource(cfg.Inventory.SnapshotPath)
}
