package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/artifact"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

const (
	chunkArtifactKey = "chunks.json"
	embedArtifactKey = "embeddings.json"
)

type memoryConfig struct {
	StoreType string      `json:"store_type"`
	Store     interface{} `json:"store"`
}

// chunkManifest is the serialized chunk sequence plus the source-document
// hash it was derived from.
type chunkManifest struct {
	SourceHash string                `json:"source_hash"`
	Chunks     []model.DocumentChunk `json:"chunks"`
}

type memoryIndex struct {
	embedder ai.IEmbedder
	store    artifact.Store

	mu         sync.RWMutex
	sourceHash string
	chunks     []model.DocumentChunk
	vectors    [][]float32
	dim        int
}

func init() {
	Register("memory", createMemoryIndex)
}

func createMemoryIndex(args Args) (Index, error) {
	cfg := &memoryConfig{}
	if err := decodeConfig(args.Data, cfg); err != nil {
		return nil, err
	}
	if cfg.StoreType == "" {
		cfg.StoreType = "local"
	}
	store, err := artifact.New(cfg.StoreType, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init artifact store: %w", err)
	}
	return &memoryIndex{embedder: args.Embedder, store: store}, nil
}

func (m *memoryIndex) Load(ctx context.Context) (bool, error) {
	m.mu.RLock()
	already := len(m.chunks) > 0
	m.mu.RUnlock()
	if already {
		return true, nil
	}

	chunkData, err := m.store.Open(ctx, chunkArtifactKey)
	if appErr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	embedData, err := m.store.Open(ctx, embedArtifactKey)
	if appErr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var manifest chunkManifest
	if err := json.Unmarshal(chunkData, &manifest); err != nil {
		return false, fmt.Errorf("decode chunk artifact: %w", err)
	}
	var vectors [][]float32
	if err := json.Unmarshal(embedData, &vectors); err != nil {
		return false, fmt.Errorf("decode embedding artifact: %w", err)
	}
	if len(manifest.Chunks) != len(vectors) {
		return false, fmt.Errorf("artifact mismatch: %d chunks vs %d embeddings", len(manifest.Chunks), len(vectors))
	}

	m.mu.Lock()
	m.sourceHash = manifest.SourceHash
	m.chunks = manifest.Chunks
	m.vectors = vectors
	if len(vectors) > 0 {
		m.dim = len(vectors[0])
	}
	m.mu.Unlock()
	logutil.GetLogger(ctx).Info("vector index loaded from artifacts",
		zap.Int("chunks", len(manifest.Chunks)),
		zap.Int("dim", m.dim),
	)
	return true, nil
}

func (m *memoryIndex) Rebuild(ctx context.Context, sourceHash string, chunks []model.DocumentChunk) error {
	logger := logutil.GetLogger(ctx)
	logger.Info("building vector index", zap.Int("chunks", len(chunks)))

	vectors := make([][]float32, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		vec, err := m.embedder.Embed(ctx, chunk.Text, TaskTypeDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", chunk.Position, err)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return fmt.Errorf("chunk %d: %w", chunk.Position, appErr.ErrDimension)
		}
		vectors = append(vectors, vec)
	}

	chunkData, err := json.Marshal(chunkManifest{SourceHash: sourceHash, Chunks: chunks})
	if err != nil {
		return err
	}
	embedData, err := json.Marshal(vectors)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, chunkArtifactKey, chunkData); err != nil {
		return fmt.Errorf("persist chunk artifact: %w", err)
	}
	if err := m.store.Save(ctx, embedArtifactKey, embedData); err != nil {
		return fmt.Errorf("persist embedding artifact: %w", err)
	}

	m.mu.Lock()
	m.sourceHash = sourceHash
	m.chunks = chunks
	m.vectors = vectors
	m.dim = dim
	m.mu.Unlock()
	logger.Info("vector index built", zap.Int("chunks", len(chunks)), zap.Int("dim", dim))
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	_ = ctx
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.chunks) == 0 {
		return nil, appErr.ErrIndexEmpty
	}
	if len(query) != m.dim {
		return nil, fmt.Errorf("query dim %d, index dim %d: %w", len(query), m.dim, appErr.ErrDimension)
	}
	if k <= 0 {
		k = 1
	}

	results := make([]SearchResult, 0, len(m.chunks))
	for i, vec := range m.vectors {
		results = append(results, SearchResult{
			Chunk:    m.chunks[i],
			Distance: euclideanDistance(query, vec),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

func (m *memoryIndex) SourceHash() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sourceHash
}

func (m *memoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func euclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
