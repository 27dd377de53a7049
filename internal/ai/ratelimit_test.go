package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
	times []time.Time
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	c.times = append(c.times, time.Now())
	return []float32{1}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "counting"
}

func TestWrapIntervalLimitToEmbedder_SpacesCalls(t *testing.T) {
	inner := &countingEmbedder{}
	limited := WrapIntervalLimitToEmbedder(inner, 30*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limited.Embed(ctx, "text", "RETRIEVAL_DOCUMENT")
		require.NoError(t, err)
	}
	require.Equal(t, 3, inner.calls)
	for i := 1; i < len(inner.times); i++ {
		require.GreaterOrEqual(t, inner.times[i].Sub(inner.times[i-1]), 25*time.Millisecond)
	}
}

func TestWrapIntervalLimitToEmbedder_CancelableWait(t *testing.T) {
	inner := &countingEmbedder{}
	limited := WrapIntervalLimitToEmbedder(inner, time.Minute)

	_, err := limited.Embed(context.Background(), "first", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Embed(ctx, "second", "RETRIEVAL_DOCUMENT")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, inner.calls)
}

func TestWrapIntervalLimitToEmbedder_DisabledPassThrough(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, IEmbedder(inner), WrapIntervalLimitToEmbedder(inner, 0))
}
