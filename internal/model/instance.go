package model

import "fmt"

// InstanceState is the lifecycle state of a virtual machine.
type InstanceState string

const (
	InstanceActive    InstanceState = "active"
	InstanceBuilding  InstanceState = "building"
	InstancePaused    InstanceState = "paused"
	InstanceSuspended InstanceState = "suspended"
	InstanceStopped   InstanceState = "stopped"
	InstanceMigrating InstanceState = "migrating"
	InstanceError     InstanceState = "error"
	InstanceDeleted   InstanceState = "deleted"
)

var validInstanceStates = map[InstanceState]bool{
	InstanceActive:    true,
	InstanceBuilding:  true,
	InstancePaused:    true,
	InstanceSuspended: true,
	InstanceStopped:   true,
	InstanceMigrating: true,
	InstanceError:     true,
	InstanceDeleted:   true,
}

// Instance is a virtual machine with its declared flavor demand.
type Instance struct {
	UUID     string        `json:"uuid"`
	Name     string        `json:"name,omitempty"`
	VCPUs    int64         `json:"vcpus"`
	MemoryMB int64         `json:"memory_mb"`
	DiskGB   int64         `json:"disk_gb"`
	State    InstanceState `json:"state"`
}

// Demand returns the resources reserved by the instance flavor.
func (i *Instance) Demand() Resources {
	return Resources{VCPUs: i.VCPUs, MemoryMB: i.MemoryMB, DiskGB: i.DiskGB}
}

// Active reports whether the instance is running and therefore migratable.
func (i *Instance) Active() bool {
	return i.State == InstanceActive
}

// Validate checks demand and state.
func (i *Instance) Validate() error {
	if i.UUID == "" {
		return fmt.Errorf("instance has empty uuid")
	}
	if i.VCPUs < 0 || i.MemoryMB < 0 || i.DiskGB < 0 {
		return fmt.Errorf("instance %s: demand must be non-negative", i.UUID)
	}
	if !validInstanceStates[i.State] {
		return fmt.Errorf("instance %s: invalid state %q", i.UUID, i.State)
	}
	return nil
}

// Resources is a vCPU / memory / disk quantity.
type Resources struct {
	VCPUs    int64 `json:"vcpus"`
	MemoryMB int64 `json:"memory_mb"`
	DiskGB   int64 `json:"disk_gb"`
}

// Add returns the sum of two quantities.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		VCPUs:    r.VCPUs + other.VCPUs,
		MemoryMB: r.MemoryMB + other.MemoryMB,
		DiskGB:   r.DiskGB + other.DiskGB,
	}
}

// Sub returns the difference of two quantities. Components may go negative
// when a host is overcommitted.
func (r Resources) Sub(other Resources) Resources {
	return Resources{
		VCPUs:    r.VCPUs - other.VCPUs,
		MemoryMB: r.MemoryMB - other.MemoryMB,
		DiskGB:   r.DiskGB - other.DiskGB,
	}
}

// FitsIn returns true if every component of r is within capacity.
func (r Resources) FitsIn(capacity Resources) bool {
	return r.VCPUs <= capacity.VCPUs &&
		r.MemoryMB <= capacity.MemoryMB &&
		r.DiskGB <= capacity.DiskGB
}

// IsZero returns true if all components are zero.
func (r Resources) IsZero() bool {
	return r.VCPUs == 0 && r.MemoryMB == 0 && r.DiskGB == 0
}
