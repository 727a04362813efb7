// Package report renders audit results for terminals and machines.
package report

import (
	"context"
	"io"

	"github.com/guimove/hostbalance/internal/audit"
)

// Reporter formats and writes an audit result to an output destination.
type Reporter interface {
	Report(ctx context.Context, res *audit.Result) error
}

// NewReporter creates a reporter for the given format writing to w.
func NewReporter(format string, w io.Writer) Reporter {
	switch format {
	case "json":
		return &JSONReporter{w: w}
	default:
		return &TableReporter{w: w}
	}
}
