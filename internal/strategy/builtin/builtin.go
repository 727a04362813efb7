// Package builtin registers the strategies shipped with hostbalance.
package builtin

import (
	"github.com/guimove/hostbalance/internal/strategy"
	"github.com/guimove/hostbalance/internal/strategy/dummy"
	"github.com/guimove/hostbalance/internal/strategy/workloadbalance"
)

// Registry returns a registry holding every built-in strategy.
func Registry() *strategy.Registry {
	r := strategy.NewRegistry()
	r.MustRegister(workloadbalance.Descriptor())
	r.MustRegister(dummy.Descriptor())
	return r
}
