package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Manager holds backends in preference order and picks the first one able to
// serve a strategy.
type Manager struct {
	backends []Datasource
	logger   *zap.Logger
}

// NewManager returns a manager over backends, most preferred first.
func NewManager(logger *zap.Logger, backends ...Datasource) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		backends: backends,
		logger:   logger.With(zap.String("component", "datasource-manager")),
	}
}

// Backends returns the configured backend names in preference order.
func (m *Manager) Backends() []string {
	names := make([]string, len(m.backends))
	for i, b := range m.backends {
		names[i] = b.Name()
	}
	return names
}

// Select returns the first backend that is reachable and supports every
// requested meter.
func (m *Manager) Select(ctx context.Context, meters ...Meter) (Datasource, error) {
	for _, b := range m.backends {
		if missing := firstUnsupported(b, meters); missing != "" {
			m.logger.Info("skipping datasource",
				zap.String("datasource", b.Name()),
				zap.String("reason", "meter not supported"),
				zap.String("meter", string(missing)))
			continue
		}
		if err := b.Ping(ctx); err != nil {
			m.logger.Warn("skipping datasource",
				zap.String("datasource", b.Name()),
				zap.String("reason", "unreachable"),
				zap.Error(err))
			continue
		}
		m.logger.Debug("selected datasource", zap.String("datasource", b.Name()))
		return b, nil
	}
	return nil, fmt.Errorf("%w (tried %v)", ErrNoDatasource, m.Backends())
}

func firstUnsupported(b Datasource, meters []Meter) Meter {
	for _, mt := range meters {
		if !b.Supports(mt) {
			return mt
		}
	}
	return ""
}
