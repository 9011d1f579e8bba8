package memory

import (
	"context"
	"sync"

	"github.com/aretw0/cftbridge/pkg/domain"
)

// Reporter implements ports.ErrorReporter by keeping the most recent reports.
type Reporter struct {
	mu      sync.Mutex
	limit   int
	reports []domain.ErrorReport
}

// NewReporter keeps at most limit reports. A limit of zero or less keeps everything.
func NewReporter(limit int) *Reporter {
	return &Reporter{limit: limit}
}

// Report records report.
func (r *Reporter) Report(ctx context.Context, report domain.ErrorReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	if r.limit > 0 && len(r.reports) > r.limit {
		r.reports = r.reports[len(r.reports)-r.limit:]
	}
}

// Reports returns the recorded reports, oldest first.
func (r *Reporter) Reports() []domain.ErrorReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ErrorReport(nil), r.reports...)
}
