package ports

import (
	"context"

	"github.com/kirillkom/filemeta-worker/internal/core/domain"
)

// FileAnalyzer is the inbound contract for analyzing one file reference.
// Implementations never return an error: every failure is folded into the
// returned Outcome.
type FileAnalyzer interface {
	Analyze(ctx context.Context, file domain.FileReference) domain.Outcome
}

// BatchProcessor runs a single polling cycle.
type BatchProcessor interface {
	RunOnce(ctx context.Context) int
}
