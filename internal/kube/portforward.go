package kube

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// Tunnel is an open port-forward to a pod backing a metrics service.
type Tunnel struct {
	LocalPort uint16
	Pod       string
	stop      chan struct{}
}

// URL returns the local address of the tunnel.
func (t *Tunnel) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", t.LocalPort)
}

// Close terminates the tunnel.
func (t *Tunnel) Close() {
	close(t.stop)
}

// Resolve returns a reachable URL for ep. In-cluster the service DNS name is
// used directly; otherwise a tunnel is opened and its Close must be called.
// The returned cleanup is never nil.
func Resolve(ctx context.Context, c *Client, ep *Endpoint, logger *zap.Logger) (string, func(), error) {
	if c.InCluster {
		return ep.URL(), func() {}, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pod, podPort, err := backingPod(ctx, c.Clientset, ep)
	if err != nil {
		return "", nil, err
	}
	t, err := openTunnel(c, pod.Name, ep.Namespace, podPort)
	if err != nil {
		return "", nil, err
	}
	logger.Info("port-forwarding metrics service",
		zap.String("service", ep.Namespace+"/"+ep.Service),
		zap.String("pod", t.Pod),
		zap.String("url", t.URL()))
	return t.URL(), t.Close, nil
}

// backingPod finds a running pod behind ep and the container port its
// service port targets.
func backingPod(ctx context.Context, client kubernetes.Interface, ep *Endpoint) (*corev1.Pod, int32, error) {
	svc, err := client.CoreV1().Services(ep.Namespace).Get(ctx, ep.Service, metav1.GetOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("getting service %s/%s: %w", ep.Namespace, ep.Service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return nil, 0, fmt.Errorf("service %s/%s has no pod selector", ep.Namespace, ep.Service)
	}

	var sp *corev1.ServicePort
	for i := range svc.Spec.Ports {
		if svc.Spec.Ports[i].Port == ep.Port {
			sp = &svc.Spec.Ports[i]
			break
		}
	}
	if sp == nil {
		return nil, 0, fmt.Errorf("service %s/%s has no port %d", ep.Namespace, ep.Service, ep.Port)
	}

	pods, err := client.CoreV1().Pods(ep.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: metav1.FormatLabelSelector(&metav1.LabelSelector{MatchLabels: svc.Spec.Selector}),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("listing pods for service %s/%s: %w", ep.Namespace, ep.Service, err)
	}
	for i := range pods.Items {
		if pods.Items[i].Status.Phase == corev1.PodRunning {
			pod := &pods.Items[i]
			return pod, targetPort(*sp, pod), nil
		}
	}
	return nil, 0, fmt.Errorf("no running pod found for service %s/%s", ep.Namespace, ep.Service)
}

// targetPort maps a service port to a container port. A named target is
// looked up on the pod's containers; unknown or unset targets fall back to
// the service port.
func targetPort(sp corev1.ServicePort, pod *corev1.Pod) int32 {
	tp := sp.TargetPort
	if n := tp.IntValue(); n != 0 {
		return int32(n)
	}
	if name := tp.String(); name != "" && name != "0" {
		for _, c := range pod.Spec.Containers {
			for _, cp := range c.Ports {
				if cp.Name == name {
					return cp.ContainerPort
				}
			}
		}
	}
	return sp.Port
}

func openTunnel(c *Client, podName, namespace string, podPort int32) (*Tunnel, error) {
	rt, upgrader, err := spdy.RoundTripperFor(c.RESTConfig)
	if err != nil {
		return nil, fmt.Errorf("creating SPDY round-tripper: %w", err)
	}

	reqURL := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(podName).
		SubResource("portforward").
		URL()
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: rt}, http.MethodPost, reqURL)

	stop := make(chan struct{}, 1)
	ready := make(chan struct{})
	fw, err := portforward.New(dialer, []string{fmt.Sprintf("0:%d", podPort)}, stop, ready, io.Discard, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("creating port-forwarder: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fw.ForwardPorts() }()

	select {
	case <-ready:
	case err := <-errCh:
		return nil, fmt.Errorf("port-forward failed: %w", err)
	}

	ports, err := fw.GetPorts()
	if err != nil || len(ports) == 0 {
		close(stop)
		return nil, fmt.Errorf("getting forwarded ports: %w", err)
	}
	return &Tunnel{LocalPort: ports[0].Local, Pod: podName, stop: stop}, nil
}
