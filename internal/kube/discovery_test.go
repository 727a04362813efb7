package kube

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func service(name, namespace string, labels map[string]string, ports ...corev1.ServicePort) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Spec:       corev1.ServiceSpec{Ports: ports},
	}
}

func tcpPort(name string, port int32) corev1.ServicePort {
	return corev1.ServicePort{Name: name, Port: port, Protocol: corev1.ProtocolTCP}
}

func TestDiscover_Flavors(t *testing.T) {
	tests := []struct {
		name       string
		svc        *corev1.Service
		wantFlavor string
		wantURL    string
	}{
		{
			name: "thanos query component",
			svc: service("thanos-query", "monitoring", map[string]string{
				"app.kubernetes.io/component": "query",
				"app.kubernetes.io/name":      "thanos",
			}, tcpPort("http", 9090)),
			wantFlavor: "thanos",
			wantURL:    "http://thanos-query.monitoring.svc:9090",
		},
		{
			name:       "thanos querier app label",
			svc:        service("thanos-querier", "observability", map[string]string{"app": "thanos-querier"}, tcpPort("http", 10902)),
			wantFlavor: "thanos",
			wantURL:    "http://thanos-querier.observability.svc:10902",
		},
		{
			name:       "victoria single",
			svc:        service("vmsingle", "vm", map[string]string{"app.kubernetes.io/name": "vmsingle"}, tcpPort("http", 8428)),
			wantFlavor: "victoria-metrics",
			wantURL:    "http://vmsingle.vm.svc:8428",
		},
		{
			name: "cortex frontend",
			svc: service("cortex-query-frontend", "cortex", map[string]string{
				"app.kubernetes.io/name":      "cortex",
				"app.kubernetes.io/component": "query-frontend",
			}, tcpPort("http", 8080)),
			wantFlavor: "cortex",
			wantURL:    "http://cortex-query-frontend.cortex.svc:8080",
		},
		{
			name:       "kube-prometheus-stack",
			svc:        service("kube-prometheus-stack-prometheus", "monitoring", map[string]string{"app": "kube-prometheus-stack-prometheus"}, tcpPort("web", 9090)),
			wantFlavor: "prometheus",
			wantURL:    "http://kube-prometheus-stack-prometheus.monitoring.svc:9090",
		},
		{
			name:       "prometheus server",
			svc:        service("prometheus-server", "monitoring", map[string]string{"app": "prometheus-server"}, tcpPort("http", 9090)),
			wantFlavor: "prometheus",
			wantURL:    "http://prometheus-server.monitoring.svc:9090",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := fake.NewSimpleClientset(tt.svc) //nolint:staticcheck // NewClientset requires generated apply configs
			ep, err := Discover(context.Background(), client, "", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ep.Flavor != tt.wantFlavor {
				t.Errorf("flavor = %s, want %s", ep.Flavor, tt.wantFlavor)
			}
			if ep.URL() != tt.wantURL {
				t.Errorf("url = %s, want %s", ep.URL(), tt.wantURL)
			}
		})
	}
}

func TestDiscover_NamespaceFilter(t *testing.T) {
	labels := map[string]string{"app": "prometheus-server"}
	client := fake.NewSimpleClientset( //nolint:staticcheck // NewClientset requires generated apply configs
		service("prometheus-server", "team-a", labels, tcpPort("http", 9090)),
		service("prometheus-server", "team-b", labels, tcpPort("http", 9090)),
	)

	ep, err := Discover(context.Background(), client, "team-b", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ep.Namespace != "team-b" {
		t.Errorf("namespace = %s, want team-b", ep.Namespace)
	}

	ep, err = Discover(context.Background(), client, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Namespace != "team-a" {
		t.Errorf("all-namespace search should pick team-a first, got %s", ep.Namespace)
	}
}

func TestDiscover_NotFound(t *testing.T) {
	client := fake.NewSimpleClientset() //nolint:staticcheck // NewClientset requires generated apply configs
	_, err := Discover(context.Background(), client, "", nil)
	if !errors.Is(err, ErrNoMetricsService) {
		t.Fatalf("expected ErrNoMetricsService, got %v", err)
	}
}

func TestDiscover_PriorityOrder(t *testing.T) {
	client := fake.NewSimpleClientset( //nolint:staticcheck // NewClientset requires generated apply configs
		service("prometheus-server", "monitoring", map[string]string{"app": "prometheus-server"}, tcpPort("http", 9090)),
		service("thanos-query", "monitoring", map[string]string{"app": "thanos-query"}, tcpPort("http", 10902)),
	)
	ep, err := Discover(context.Background(), client, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Flavor != "thanos" {
		t.Errorf("expected thanos to take priority, got %s", ep.Flavor)
	}
}

func TestDiscover_SkipsServiceWithoutTCPPort(t *testing.T) {
	udp := corev1.ServicePort{Name: "dns", Port: 53, Protocol: corev1.ProtocolUDP}
	client := fake.NewSimpleClientset( //nolint:staticcheck // NewClientset requires generated apply configs
		service("prometheus-server", "monitoring", map[string]string{"app": "prometheus-server"}, udp),
	)
	if _, err := Discover(context.Background(), client, "", nil); !errors.Is(err, ErrNoMetricsService) {
		t.Fatalf("expected ErrNoMetricsService, got %v", err)
	}
}

func TestServicePort(t *testing.T) {
	tests := []struct {
		name  string
		ports []corev1.ServicePort
		want  int32
	}{
		{"http preferred", []corev1.ServicePort{tcpPort("grpc", 10901), tcpPort("http", 9090)}, 9090},
		{"web preferred", []corev1.ServicePort{tcpPort("grpc", 10901), tcpPort("web", 9091)}, 9091},
		{"first tcp", []corev1.ServicePort{tcpPort("metrics", 8080)}, 8080},
		{"unset protocol", []corev1.ServicePort{{Name: "metrics", Port: 8081}}, 8081},
		{"none", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := corev1.Service{Spec: corev1.ServiceSpec{Ports: tt.ports}}
			if got := servicePort(svc); got != tt.want {
				t.Errorf("servicePort = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolve_InCluster(t *testing.T) {
	c := &Client{Clientset: fake.NewSimpleClientset(), InCluster: true} //nolint:staticcheck // NewClientset requires generated apply configs
	ep := &Endpoint{Flavor: "prometheus", Service: "prometheus-server", Namespace: "monitoring", Port: 9090}

	url, cleanup, err := Resolve(context.Background(), c, ep, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()
	if url != "http://prometheus-server.monitoring.svc:9090" {
		t.Errorf("url = %s", url)
	}
}
