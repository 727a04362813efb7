package model

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Snapshot is the JSON form of a cluster model, used for offline inventories
// and for attaching the post-audit placement to reports.
type Snapshot struct {
	CollectedAt time.Time      `json:"collected_at,omitempty"`
	Nodes       []SnapshotNode `json:"nodes"`
}

// SnapshotNode is a compute node together with the instances it hosts.
type SnapshotNode struct {
	ComputeNode
	Instances []Instance `json:"instances,omitempty"`
}

// LoadSnapshot reads a snapshot from a JSON file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot file: %w", err)
	}
	return &snap, nil
}

// Build turns the snapshot into a fresh cluster model.
func (s *Snapshot) Build() (*ClusterModel, error) {
	m := NewClusterModel()
	for i := range s.Nodes {
		sn := s.Nodes[i]
		node := sn.ComputeNode
		if err := m.AddNode(&node); err != nil {
			return nil, err
		}
		for j := range sn.Instances {
			inst := sn.Instances[j]
			if err := m.AddInstance(node.UUID, &inst); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Snapshot exports the model. Nodes are sorted by uuid; instances keep their
// placement order.
func (m *ClusterModel) Snapshot() Snapshot {
	snap := Snapshot{Nodes: make([]SnapshotNode, 0, len(m.nodes))}
	for _, id := range m.NodeUUIDs() {
		sn := SnapshotNode{ComputeNode: *m.nodes[id]}
		for _, instID := range m.hosted[id] {
			sn.Instances = append(sn.Instances, *m.instances[instID])
		}
		snap.Nodes = append(snap.Nodes, sn)
	}
	return snap
}
