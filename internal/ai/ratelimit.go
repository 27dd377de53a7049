package ai

import (
	"context"
	"sync"
	"time"
)

// WrapIntervalLimitToEmbedder enforces a minimum spacing between consecutive
// embedding calls. The spacing policy lives here so index building stays free
// of sleep calls; callers cancel waits through ctx.
func WrapIntervalLimitToEmbedder(e IEmbedder, interval time.Duration) IEmbedder {
	if e == nil || interval <= 0 {
		return e
	}
	return &intervalEmbedder{next: e, interval: interval}
}

type intervalEmbedder struct {
	next     IEmbedder
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (l *intervalEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Embed(ctx, text, taskType)
}

func (l *intervalEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *intervalEmbedder) wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.interval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	delay := time.Until(next)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
