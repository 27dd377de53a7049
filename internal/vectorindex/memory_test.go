package vectorindex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

// fakeEmbedder returns a deterministic vector per text and counts calls.
type fakeEmbedder struct {
	calls int
	dim   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.calls++
	dim := f.dim
	if dim == 0 {
		dim = 3
	}
	vec := make([]float32, dim)
	for i, r := range text {
		vec[i%dim] += float32(r)
	}
	return vec, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "fake-embed"
}

func newTestIndex(t *testing.T, embedder *fakeEmbedder, dir string) Index {
	t.Helper()
	index, err := New("memory", Args{
		Embedder: embedder,
		Data: map[string]interface{}{
			"store_type": "local",
			"store":      map[string]interface{}{"dir": dir},
		},
	})
	require.NoError(t, err)
	return index
}

func chunksOf(texts ...string) []model.DocumentChunk {
	chunks := make([]model.DocumentChunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, model.DocumentChunk{Position: i, Text: text})
	}
	return chunks
}

func TestMemoryIndex_SearchAscendingDistance(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder, t.TempDir())
	ctx := context.Background()

	require.NoError(t, index.Rebuild(ctx, "hash1", chunksOf("deductible terms", "copay schedule", "out of network")))
	require.Equal(t, 3, index.Len())

	query, err := embedder.Embed(ctx, "copay schedule", TaskTypeQuery)
	require.NoError(t, err)

	results, err := index.Search(ctx, query, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "copay schedule", results[0].Chunk.Text)
	require.Equal(t, float64(0), results[0].Distance)
	require.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestMemoryIndex_SearchErrors(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder, t.TempDir())
	ctx := context.Background()

	_, err := index.Search(ctx, []float32{1, 2, 3}, 2)
	require.ErrorIs(t, err, appErr.ErrIndexEmpty)

	require.NoError(t, index.Rebuild(ctx, "hash1", chunksOf("a", "b")))
	_, err = index.Search(ctx, []float32{1, 2}, 2)
	require.ErrorIs(t, err, appErr.ErrDimension)
}

func TestMemoryIndex_SearchKBeyondSize(t *testing.T) {
	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder, t.TempDir())
	ctx := context.Background()

	require.NoError(t, index.Rebuild(ctx, "hash1", chunksOf("only one")))
	query, err := embedder.Embed(ctx, "only one", TaskTypeQuery)
	require.NoError(t, err)

	results, err := index.Search(ctx, query, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestMemoryIndex_ArtifactsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := &fakeEmbedder{}
	index := newTestIndex(t, first, dir)
	require.NoError(t, index.Rebuild(ctx, "hash1", chunksOf("alpha", "beta")))
	require.Equal(t, 2, first.calls)

	// A fresh instance over the same artifacts must not embed anything.
	second := &fakeEmbedder{}
	restored := newTestIndex(t, second, dir)
	loaded, err := restored.Load(ctx)
	require.NoError(t, err)
	require.True(t, loaded)
	require.Equal(t, 0, second.calls)
	require.Equal(t, "hash1", restored.SourceHash())
	require.Equal(t, 2, restored.Len())

	query, err := first.Embed(ctx, "alpha", TaskTypeQuery)
	require.NoError(t, err)
	results, err := restored.Search(ctx, query, 1)
	require.NoError(t, err)
	require.Equal(t, "alpha", results[0].Chunk.Text)
}

func TestNew_NilDataFallsBackToDefaults(t *testing.T) {
	index, err := New("memory", Args{Embedder: &fakeEmbedder{}})
	require.NoError(t, err)
	require.Equal(t, 0, index.Len())
}

func TestMemoryIndex_LoadWithoutArtifacts(t *testing.T) {
	index := newTestIndex(t, &fakeEmbedder{}, t.TempDir())
	loaded, err := index.Load(context.Background())
	require.NoError(t, err)
	require.False(t, loaded)
}

func TestBuilderEnsure_SkipsWhenHashUnchanged(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "plan.txt")
	require.NoError(t, os.WriteFile(docPath, []byte(strings.Repeat("coverage text ", 20)), 0o644))

	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder, dir)
	builder := NewBuilder(index, docPath, 50)
	ctx := context.Background()

	require.NoError(t, builder.Ensure(ctx))
	built := embedder.calls
	require.Greater(t, built, 0)

	require.NoError(t, builder.Ensure(ctx))
	require.Equal(t, built, embedder.calls)
}

func TestBuilderEnsure_RebuildsOnDocumentChange(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "plan.txt")
	require.NoError(t, os.WriteFile(docPath, []byte("original coverage"), 0o644))

	embedder := &fakeEmbedder{}
	index := newTestIndex(t, embedder, dir)
	builder := NewBuilder(index, docPath, 50)
	ctx := context.Background()

	require.NoError(t, builder.Ensure(ctx))
	built := embedder.calls

	require.NoError(t, os.WriteFile(docPath, []byte("revised coverage terms"), 0o644))
	require.NoError(t, builder.Ensure(ctx))
	require.Greater(t, embedder.calls, built)
}
