package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/cache"
)

// CacheSweepJob evicts expired answers from the in-process cache. Redis
// handles its own expiry, so the job is only scheduled for the memory store.
type CacheSweepJob struct {
	store *cache.MemoryStore
}

func NewCacheSweepJob(store *cache.MemoryStore) *CacheSweepJob {
	return &CacheSweepJob{store: store}
}

func (j *CacheSweepJob) Name() string {
	return "cache_sweep"
}

func (j *CacheSweepJob) Run(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	removed := j.store.Sweep()
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired answers swept", zap.Int("removed", removed))
	}
	return nil
}
