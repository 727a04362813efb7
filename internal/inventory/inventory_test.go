package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/guimove/hostbalance/internal/model"
)

const snapshotJSON = `{
  "nodes": [
    {"uuid": "n1", "hostname": "compute-1", "vcpus": 8, "memory_mb": 16384, "disk_gb": 500,
     "state": "enabled", "status": "online",
     "instances": [{"uuid": "i1", "name": "web", "vcpus": 2, "memory_mb": 2048, "disk_gb": 20, "state": "active"}]},
    {"uuid": "n2", "hostname": "compute-2", "vcpus": 8, "memory_mb": 16384, "disk_gb": 500,
     "state": "enabled", "status": "online"}
  ]
}`

func TestSnapshotSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	if err := os.WriteFile(path, []byte(snapshotJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	src := NewSnapshotSource(path)
	if src.Name() != "snapshot" {
		t.Errorf("Name() = %q", src.Name())
	}
	m, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(m.AllComputeNodes()); got != 2 {
		t.Fatalf("expected 2 nodes, got %d", got)
	}
	inst, err := m.InstanceByUUID("i1")
	if err != nil {
		t.Fatal(err)
	}
	host, err := m.InstanceHost(inst)
	if err != nil {
		t.Fatal(err)
	}
	if host.UUID != "n1" {
		t.Errorf("i1 hosted on %s, want n1", host.UUID)
	}
}

func TestSnapshotSource_Errors(t *testing.T) {
	if _, err := NewSnapshotSource("").Load(context.Background()); err == nil {
		t.Error("expected error for empty path")
	}
	if _, err := NewSnapshotSource(filepath.Join(t.TempDir(), "missing.json")).Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSDKURL(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"vcenter.example.com", "https://vcenter.example.com/sdk"},
		{"https://vcenter.example.com/", "https://vcenter.example.com/sdk"},
		{"http://127.0.0.1:8989", "http://127.0.0.1:8989/sdk"},
	}
	for _, tt := range tests {
		u, err := sdkURL(VSphereCredentials{Host: tt.host, Username: "u", Password: "p"})
		if err != nil {
			t.Fatalf("sdkURL(%q): %v", tt.host, err)
		}
		u.User = nil
		if u.String() != tt.want {
			t.Errorf("sdkURL(%q) = %s, want %s", tt.host, u.String(), tt.want)
		}
	}
}

func TestHostToNode(t *testing.T) {
	ref := types.ManagedObjectReference{Type: "HostSystem", Value: "host-1"}
	base := func() *mo.HostSystem {
		h := &mo.HostSystem{}
		h.Self = ref
		h.Summary.Config.Name = "esx-1"
		h.Summary.Hardware = &types.HostHardwareSummary{NumCpuThreads: 32, MemorySize: 128 * 1024 * 1024 * 1024}
		h.Runtime.ConnectionState = types.HostSystemConnectionStateConnected
		h.Datastore = []types.ManagedObjectReference{{Type: "Datastore", Value: "ds-1"}}
		return h
	}
	caps := map[string]int64{"ds-1": 2048 * gib}

	n := hostToNode(base(), caps)
	if n.UUID != "host-1" || n.Hostname != "esx-1" {
		t.Errorf("identity: %+v", n)
	}
	if n.VCPUs != 32 || n.MemoryMB != 131072 || n.DiskGB != 2048 {
		t.Errorf("capacity: %+v", n)
	}
	if !n.Available() {
		t.Error("connected host should be available")
	}

	maint := base()
	maint.Runtime.InMaintenanceMode = true
	if n := hostToNode(maint, caps); n.Available() || n.Status != model.StatusMaintenance {
		t.Errorf("maintenance host: %+v", n)
	}

	gone := base()
	gone.Runtime.ConnectionState = types.HostSystemConnectionStateDisconnected
	if n := hostToNode(gone, caps); n.Status != model.StatusOffline {
		t.Errorf("disconnected host status = %s", n.Status)
	}
}

func TestVMToInstance(t *testing.T) {
	tests := []struct {
		power types.VirtualMachinePowerState
		want  model.InstanceState
	}{
		{types.VirtualMachinePowerStatePoweredOn, model.InstanceActive},
		{types.VirtualMachinePowerStateSuspended, model.InstanceSuspended},
		{types.VirtualMachinePowerStatePoweredOff, model.InstanceStopped},
	}
	for _, tt := range tests {
		vm := &mo.VirtualMachine{}
		vm.Self = types.ManagedObjectReference{Type: "VirtualMachine", Value: "vm-7"}
		vm.Config = &types.VirtualMachineConfigInfo{Name: "db"}
		vm.Config.Hardware.NumCPU = 4
		vm.Config.Hardware.MemoryMB = 8192
		vm.Summary.Storage = &types.VirtualMachineStorageSummary{Committed: 40 * gib}
		vm.Runtime.PowerState = tt.power

		inst := vmToInstance(vm)
		if inst.UUID != "vm-7" {
			t.Errorf("uuid fallback: got %s", inst.UUID)
		}
		if inst.VCPUs != 4 || inst.MemoryMB != 8192 || inst.DiskGB != 40 {
			t.Errorf("demand: %+v", inst)
		}
		if inst.State != tt.want {
			t.Errorf("%s: state = %s, want %s", tt.power, inst.State, tt.want)
		}
	}
}

func TestVSphereSource_LoadSimulator(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		src := NewVSphereSource(VSphereCredentials{}, nil)
		m, err := src.load(ctx, c)
		if err != nil {
			t.Fatalf("load: %v", err)
		}

		nodes := m.AllComputeNodes()
		if len(nodes) == 0 {
			t.Fatal("expected hosts from simulator")
		}
		placed := 0
		for _, n := range nodes {
			if !n.Available() {
				t.Errorf("simulator host %s should be available", n.UUID)
			}
			if n.VCPUs <= 0 || n.MemoryMB <= 0 {
				t.Errorf("host %s missing capacity: %+v", n.UUID, n)
			}
			insts, err := m.NodeInstances(n)
			if err != nil {
				t.Fatal(err)
			}
			placed += len(insts)
		}
		if placed == 0 {
			t.Error("expected simulator vms to be placed on hosts")
		}
	})
}
