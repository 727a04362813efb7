package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNodeNotFound      = errors.New("compute node not found")
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrDuplicateNode     = errors.New("compute node already in model")
	ErrDuplicateInstance = errors.New("instance already in model")
)

// ClusterModel is an in-memory snapshot of hosts, instances, and the
// instance-to-host placement. It is built once per audit and mutated only by
// the strategy that owns it; it is not safe for concurrent writers.
type ClusterModel struct {
	nodes     map[string]*ComputeNode
	instances map[string]*Instance

	// placement maps instance uuid to the hosting node uuid.
	placement map[string]string

	// hosted keeps per-node instance uuids in insertion order so that
	// iteration over a node's instances is deterministic.
	hosted map[string][]string

	stale bool
}

// NewClusterModel returns an empty, fresh model.
func NewClusterModel() *ClusterModel {
	return &ClusterModel{
		nodes:     make(map[string]*ComputeNode),
		instances: make(map[string]*Instance),
		placement: make(map[string]string),
		hosted:    make(map[string][]string),
	}
}

// AddNode registers a compute node.
func (m *ClusterModel) AddNode(n *ComputeNode) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if _, ok := m.nodes[n.UUID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.UUID)
	}
	m.nodes[n.UUID] = n
	m.hosted[n.UUID] = nil
	return nil
}

// AddInstance registers an instance and maps it onto nodeUUID.
func (m *ClusterModel) AddInstance(nodeUUID string, inst *Instance) error {
	if _, ok := m.nodes[nodeUUID]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, nodeUUID)
	}
	if err := inst.Validate(); err != nil {
		return err
	}
	if _, ok := m.instances[inst.UUID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, inst.UUID)
	}
	m.instances[inst.UUID] = inst
	m.placement[inst.UUID] = nodeUUID
	m.hosted[nodeUUID] = append(m.hosted[nodeUUID], inst.UUID)
	return nil
}

// AllComputeNodes returns every node keyed by uuid. The returned map is a
// copy; the nodes themselves are shared with the model.
func (m *ClusterModel) AllComputeNodes() map[string]*ComputeNode {
	out := make(map[string]*ComputeNode, len(m.nodes))
	for id, n := range m.nodes {
		out[id] = n
	}
	return out
}

// NodeUUIDs returns all node uuids in sorted order.
func (m *ClusterModel) NodeUUIDs() []string {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeByUUID looks up a node.
func (m *ClusterModel) NodeByUUID(id string) (*ComputeNode, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// InstanceByUUID looks up an instance.
func (m *ClusterModel) InstanceByUUID(id string) (*Instance, error) {
	inst, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return inst, nil
}

// NodeInstances returns the instances hosted on node in the order they were
// placed there.
func (m *ClusterModel) NodeInstances(node *ComputeNode) ([]*Instance, error) {
	ids, ok := m.hosted[node.UUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, node.UUID)
	}
	out := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.instances[id])
	}
	return out, nil
}

// InstanceHost returns the node currently hosting the instance.
func (m *ClusterModel) InstanceHost(inst *Instance) (*ComputeNode, error) {
	nodeID, ok := m.placement[inst.UUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, inst.UUID)
	}
	return m.nodes[nodeID], nil
}

// UsedResources sums the declared flavor demand of every instance on node.
func (m *ClusterModel) UsedResources(node *ComputeNode) (Resources, error) {
	insts, err := m.NodeInstances(node)
	if err != nil {
		return Resources{}, err
	}
	var used Resources
	for _, inst := range insts {
		used = used.Add(inst.Demand())
	}
	return used, nil
}

// MigrateInstance re-homes inst from source to destination inside the model.
// It returns false, leaving the model untouched, when source and destination
// are the same node, either node is unknown, or inst is not on source.
func (m *ClusterModel) MigrateInstance(inst *Instance, source, destination *ComputeNode) bool {
	if inst == nil || source == nil || destination == nil {
		return false
	}
	if source.UUID == destination.UUID {
		return false
	}
	if _, ok := m.nodes[source.UUID]; !ok {
		return false
	}
	if _, ok := m.nodes[destination.UUID]; !ok {
		return false
	}
	if m.placement[inst.UUID] != source.UUID {
		return false
	}

	ids := m.hosted[source.UUID]
	for i, id := range ids {
		if id == inst.UUID {
			m.hosted[source.UUID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	m.hosted[destination.UUID] = append(m.hosted[destination.UUID], inst.UUID)
	m.placement[inst.UUID] = destination.UUID
	return true
}

// Stale reports whether the model is known to be out of date.
func (m *ClusterModel) Stale() bool { return m.stale }

// MarkStale flags the model as out of date.
func (m *ClusterModel) MarkStale() { m.stale = true }

// Refresh clears the stale flag.
func (m *ClusterModel) Refresh() { m.stale = false }

// Clone returns a deep copy of the model.
func (m *ClusterModel) Clone() *ClusterModel {
	out := NewClusterModel()
	out.stale = m.stale
	for id, n := range m.nodes {
		cp := *n
		out.nodes[id] = &cp
	}
	for id, inst := range m.instances {
		cp := *inst
		out.instances[id] = &cp
	}
	for k, v := range m.placement {
		out.placement[k] = v
	}
	for k, v := range m.hosted {
		out.hosted[k] = append([]string(nil), v...)
	}
	return out
}

// String renders the model as an indented host / instance listing.
func (m *ClusterModel) String() string {
	var b strings.Builder
	for _, id := range m.NodeUUIDs() {
		n := m.nodes[id]
		fmt.Fprintf(&b, "node %s state=%s status=%s vcpus=%d memory_mb=%d disk_gb=%d\n",
			n.UUID, n.State, n.Status, n.VCPUs, n.MemoryMB, n.DiskGB)
		for _, instID := range m.hosted[id] {
			inst := m.instances[instID]
			fmt.Fprintf(&b, "  instance %s state=%s vcpus=%d memory_mb=%d disk_gb=%d\n",
				inst.UUID, inst.State, inst.VCPUs, inst.MemoryMB, inst.DiskGB)
		}
	}
	return b.String()
}
