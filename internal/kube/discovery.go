package kube

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ErrNoMetricsService is returned when no known metrics service exists.
var ErrNoMetricsService = errors.New("no Prometheus-compatible service found in the cluster")

// Endpoint is a discovered metrics service.
type Endpoint struct {
	// Flavor is one of prometheus, thanos, cortex, mimir, victoria-metrics.
	Flavor    string
	Service   string
	Namespace string
	Port      int32
}

// URL returns the in-cluster service address.
func (e Endpoint) URL() string {
	return fmt.Sprintf("http://%s.%s.svc:%d", e.Service, e.Namespace, e.Port)
}

type probe struct {
	flavor   string
	selector string
}

// Probes are tried in order; query frontends sit ahead of plain Prometheus
// since they front the longer retention.
var probes = []probe{
	{"thanos", "app.kubernetes.io/component=query,app.kubernetes.io/name=thanos"},
	{"thanos", "app.kubernetes.io/name=thanos-query"},
	{"thanos", "app=thanos-query"},
	{"thanos", "app=thanos-querier"},
	{"victoria-metrics", "app.kubernetes.io/name=vmsingle"},
	{"victoria-metrics", "app.kubernetes.io/name=victoria-metrics-single"},
	{"victoria-metrics", "app.kubernetes.io/name=vmselect"},
	{"mimir", "app.kubernetes.io/name=mimir,app.kubernetes.io/component=query-frontend"},
	{"cortex", "app.kubernetes.io/name=cortex,app.kubernetes.io/component=query-frontend"},
	{"prometheus", "app=kube-prometheus-stack-prometheus"},
	{"prometheus", "app=prometheus,component=server"},
	{"prometheus", "app=prometheus-server"},
	{"prometheus", "app.kubernetes.io/name=prometheus"},
}

// Discover returns the first metrics service matching a known label
// selector. Namespace restricts the search; empty means all namespaces.
// When a selector matches several services the lowest namespace/name wins.
func Discover(ctx context.Context, client kubernetes.Interface, namespace string, logger *zap.Logger) (*Endpoint, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, p := range probes {
		list, err := client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{LabelSelector: p.selector})
		if err != nil {
			logger.Debug("service lookup failed", zap.String("selector", p.selector), zap.Error(err))
			continue
		}

		items := list.Items
		sort.Slice(items, func(i, j int) bool {
			if items[i].Namespace != items[j].Namespace {
				return items[i].Namespace < items[j].Namespace
			}
			return items[i].Name < items[j].Name
		})

		for _, svc := range items {
			port := servicePort(svc)
			if port == 0 {
				continue
			}
			ep := &Endpoint{Flavor: p.flavor, Service: svc.Name, Namespace: svc.Namespace, Port: port}
			logger.Info("discovered metrics service",
				zap.String("flavor", ep.Flavor),
				zap.String("service", ep.Namespace+"/"+ep.Service),
				zap.Int32("port", ep.Port))
			return ep, nil
		}
	}
	return nil, ErrNoMetricsService
}

var webPortNames = map[string]bool{"http": true, "web": true, "http-web": true}

// servicePort prefers a web-named port, then the first TCP port.
func servicePort(svc corev1.Service) int32 {
	for _, p := range svc.Spec.Ports {
		if webPortNames[p.Name] {
			return p.Port
		}
	}
	for _, p := range svc.Spec.Ports {
		if p.Protocol == corev1.ProtocolTCP || p.Protocol == "" {
			return p.Port
		}
	}
	return 0
}
