package job

import (
	"context"

	"github.com/carelink/clinassist/internal/vectorindex"
)

// IndexRefreshJob re-runs the index builder on a schedule so an edited plan
// document gets re-chunked and re-embedded without a restart. An unchanged
// document is a no-op.
type IndexRefreshJob struct {
	builder *vectorindex.Builder
}

func NewIndexRefreshJob(builder *vectorindex.Builder) *IndexRefreshJob {
	return &IndexRefreshJob{builder: builder}
}

func (j *IndexRefreshJob) Name() string {
	return "index_refresh"
}

func (j *IndexRefreshJob) Run(ctx context.Context) error {
	if j.builder == nil {
		return nil
	}
	return j.builder.Ensure(ctx)
}
