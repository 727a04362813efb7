package model

import "fmt"

// ServiceState is the administrative state of a compute service.
type ServiceState string

const (
	ServiceEnabled  ServiceState = "enabled"
	ServiceDisabled ServiceState = "disabled"
)

// ServiceStatus is the liveness status reported by a compute service.
type ServiceStatus string

const (
	StatusOnline      ServiceStatus = "online"
	StatusOffline     ServiceStatus = "offline"
	StatusMaintenance ServiceStatus = "maintenance"
)

// ComputeNode is a hypervisor host able to run instances.
type ComputeNode struct {
	UUID     string        `json:"uuid"`
	Hostname string        `json:"hostname,omitempty"`
	VCPUs    int64         `json:"vcpus"`
	MemoryMB int64         `json:"memory_mb"`
	DiskGB   int64         `json:"disk_gb"`
	State    ServiceState  `json:"state"`
	Status   ServiceStatus `json:"status"`
}

// Capacity returns the node's raw capacity.
func (n *ComputeNode) Capacity() Resources {
	return Resources{VCPUs: n.VCPUs, MemoryMB: n.MemoryMB, DiskGB: n.DiskGB}
}

// Available reports whether the node may receive or give up workload:
// it must be administratively enabled and currently online.
func (n *ComputeNode) Available() bool {
	return n.State == ServiceEnabled && n.Status == StatusOnline
}

// Validate checks capacities and enum values.
func (n *ComputeNode) Validate() error {
	if n.UUID == "" {
		return fmt.Errorf("compute node has empty uuid")
	}
	if n.VCPUs < 0 || n.MemoryMB < 0 || n.DiskGB < 0 {
		return fmt.Errorf("compute node %s: capacities must be non-negative", n.UUID)
	}
	switch n.State {
	case ServiceEnabled, ServiceDisabled:
	default:
		return fmt.Errorf("compute node %s: invalid state %q", n.UUID, n.State)
	}
	switch n.Status {
	case StatusOnline, StatusOffline, StatusMaintenance:
	default:
		return fmt.Errorf("compute node %s: invalid status %q", n.UUID, n.Status)
	}
	return nil
}
