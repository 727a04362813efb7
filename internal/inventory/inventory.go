// Package inventory builds cluster models from an external source of truth.
package inventory

import (
	"context"
	"fmt"

	"github.com/guimove/hostbalance/internal/model"
)

// Source produces a fresh cluster model.
type Source interface {
	Name() string
	Load(ctx context.Context) (*model.ClusterModel, error)
}

// SnapshotSource loads the model from a JSON snapshot file.
type SnapshotSource struct {
	path string
}

// NewSnapshotSource creates a source reading path.
func NewSnapshotSource(path string) *SnapshotSource {
	return &SnapshotSource{path: path}
}

// Name returns "snapshot".
func (s *SnapshotSource) Name() string { return "snapshot" }

// Load reads and builds the snapshot.
func (s *SnapshotSource) Load(ctx context.Context) (*model.ClusterModel, error) {
	if s.path == "" {
		return nil, fmt.Errorf("snapshot source: no path configured")
	}
	snap, err := model.LoadSnapshot(s.path)
	if err != nil {
		return nil, err
	}
	m, err := snap.Build()
	if err != nil {
		return nil, fmt.Errorf("building model from %s: %w", s.path, err)
	}
	return m, nil
}
