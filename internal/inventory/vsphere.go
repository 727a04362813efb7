package inventory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/property"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"github.com/guimove/hostbalance/internal/model"
)

// VSphereCredentials holds vCenter connection info.
type VSphereCredentials struct {
	Host       string
	Username   string
	Password   string
	Datacenter string
	Insecure   bool
}

// VSphereSource reads hosts and virtual machines from vCenter.
type VSphereSource struct {
	creds  VSphereCredentials
	logger *zap.Logger
}

// NewVSphereSource creates a vCenter-backed source.
func NewVSphereSource(creds VSphereCredentials, logger *zap.Logger) *VSphereSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VSphereSource{creds: creds, logger: logger.With(zap.String("component", "vsphere"))}
}

// Name returns "vsphere".
func (s *VSphereSource) Name() string { return "vsphere" }

// Load connects, reads the inventory and logs out.
func (s *VSphereSource) Load(ctx context.Context) (*model.ClusterModel, error) {
	u, err := sdkURL(s.creds)
	if err != nil {
		return nil, err
	}

	client, err := govmomi.NewClient(ctx, u, s.creds.Insecure)
	if err != nil {
		return nil, fmt.Errorf("connecting to vCenter at %s: %w", s.creds.Host, err)
	}
	defer func() {
		if err := client.Logout(ctx); err != nil {
			s.logger.Debug("vCenter logout failed", zap.Error(err))
		}
	}()

	s.logger.Info("vSphere connected", zap.String("host", s.creds.Host))
	return s.load(ctx, client.Client)
}

func sdkURL(creds VSphereCredentials) (*url.URL, error) {
	host := creds.Host
	if !strings.HasPrefix(host, "https://") && !strings.HasPrefix(host, "http://") {
		host = "https://" + host
	}
	u, err := url.Parse(strings.TrimSuffix(host, "/") + "/sdk")
	if err != nil {
		return nil, fmt.Errorf("invalid vCenter URL %q: %w", creds.Host, err)
	}
	u.User = url.UserPassword(creds.Username, creds.Password)
	return u, nil
}

func (s *VSphereSource) load(ctx context.Context, c *vim25.Client) (*model.ClusterModel, error) {
	finder := find.NewFinder(c, true)
	dc, err := finder.DatacenterOrDefault(ctx, s.creds.Datacenter)
	if err != nil {
		return nil, fmt.Errorf("datacenter %q: %w", s.creds.Datacenter, err)
	}
	finder.SetDatacenter(dc)

	hostObjs, err := finder.HostSystemList(ctx, "*")
	if err != nil {
		return nil, fmt.Errorf("listing hosts: %w", err)
	}
	hostRefs := make([]types.ManagedObjectReference, len(hostObjs))
	for i, h := range hostObjs {
		hostRefs[i] = h.Reference()
	}

	pc := property.DefaultCollector(c)

	var hosts []mo.HostSystem
	if err := pc.Retrieve(ctx, hostRefs, []string{"summary", "runtime", "datastore"}, &hosts); err != nil {
		return nil, fmt.Errorf("retrieving host properties: %w", err)
	}

	dsCapacity, err := datastoreCapacity(ctx, pc, hosts)
	if err != nil {
		return nil, err
	}

	m := model.NewClusterModel()
	for i := range hosts {
		node := hostToNode(&hosts[i], dsCapacity)
		if err := m.AddNode(node); err != nil {
			return nil, err
		}
	}

	vmObjs, err := finder.VirtualMachineList(ctx, "*")
	if err != nil {
		// An empty datacenter has no VMs; finder reports that as NotFound.
		if _, ok := err.(*find.NotFoundError); ok {
			return m, nil
		}
		return nil, fmt.Errorf("listing virtual machines: %w", err)
	}
	vmRefs := make([]types.ManagedObjectReference, len(vmObjs))
	for i, v := range vmObjs {
		vmRefs[i] = v.Reference()
	}

	var vms []mo.VirtualMachine
	if err := pc.Retrieve(ctx, vmRefs, []string{"summary", "config", "runtime"}, &vms); err != nil {
		return nil, fmt.Errorf("retrieving vm properties: %w", err)
	}

	for i := range vms {
		vm := &vms[i]
		if vm.Config == nil || vm.Config.Template || vm.Runtime.Host == nil {
			continue
		}
		inst := vmToInstance(vm)
		if err := m.AddInstance(vm.Runtime.Host.Value, inst); err != nil {
			s.logger.Warn("skipping vm", zap.String("vm", inst.Name), zap.Error(err))
		}
	}

	s.logger.Debug("vSphere inventory loaded",
		zap.Int("hosts", len(hosts)),
		zap.Int("vms", len(vms)))
	return m, nil
}

func datastoreCapacity(ctx context.Context, pc *property.Collector, hosts []mo.HostSystem) (map[string]int64, error) {
	seen := make(map[string]bool)
	var refs []types.ManagedObjectReference
	for _, h := range hosts {
		for _, ref := range h.Datastore {
			if !seen[ref.Value] {
				seen[ref.Value] = true
				refs = append(refs, ref)
			}
		}
	}
	out := make(map[string]int64, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	var stores []mo.Datastore
	if err := pc.Retrieve(ctx, refs, []string{"summary"}, &stores); err != nil {
		return nil, fmt.Errorf("retrieving datastore properties: %w", err)
	}
	for _, ds := range stores {
		out[ds.Reference().Value] = ds.Summary.Capacity
	}
	return out, nil
}

const gib = 1024 * 1024 * 1024

func hostToNode(h *mo.HostSystem, dsCapacity map[string]int64) *model.ComputeNode {
	node := &model.ComputeNode{
		UUID:     h.Reference().Value,
		Hostname: h.Summary.Config.Name,
		State:    model.ServiceEnabled,
		Status:   model.StatusOnline,
	}
	if hw := h.Summary.Hardware; hw != nil {
		node.VCPUs = int64(hw.NumCpuThreads)
		node.MemoryMB = hw.MemorySize / (1024 * 1024)
	}
	var disk int64
	for _, ref := range h.Datastore {
		disk += dsCapacity[ref.Value]
	}
	node.DiskGB = disk / gib

	switch {
	case h.Runtime.InMaintenanceMode:
		node.State = model.ServiceDisabled
		node.Status = model.StatusMaintenance
	case h.Runtime.ConnectionState != types.HostSystemConnectionStateConnected:
		node.Status = model.StatusOffline
	}
	return node
}

func vmToInstance(vm *mo.VirtualMachine) *model.Instance {
	id := vm.Config.InstanceUuid
	if id == "" {
		id = vm.Reference().Value
	}
	inst := &model.Instance{
		UUID:     id,
		Name:     vm.Config.Name,
		VCPUs:    int64(vm.Config.Hardware.NumCPU),
		MemoryMB: int64(vm.Config.Hardware.MemoryMB),
	}
	if st := vm.Summary.Storage; st != nil {
		inst.DiskGB = st.Committed / gib
	}
	switch vm.Runtime.PowerState {
	case types.VirtualMachinePowerStatePoweredOn:
		inst.State = model.InstanceActive
	case types.VirtualMachinePowerStateSuspended:
		inst.State = model.InstanceSuspended
	default:
		inst.State = model.InstanceStopped
	}
	return inst
}
