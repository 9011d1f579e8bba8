package ports

import (
	"context"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// ModelSource enumerates the host model for a full resynchronization.
type ModelSource interface {
	Snapshot(ctx context.Context) (domain.Model, error)
}

// ErrorReporter surfaces failures to the host, typically as a user-visible notice.
type ErrorReporter interface {
	Report(ctx context.Context, report domain.ErrorReport)
}

// ReporterFunc adapts a function to ErrorReporter.
type ReporterFunc func(ctx context.Context, report domain.ErrorReport)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, report domain.ErrorReport) {
	f(ctx, report)
}
