package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/model"
)

// TaskTypeDocument and TaskTypeQuery select the embedding task hint for
// providers that distinguish them (gemini does, openai ignores it).
const (
	TaskTypeDocument = "RETRIEVAL_DOCUMENT"
	TaskTypeQuery    = "RETRIEVAL_QUERY"
)

type SearchResult struct {
	Chunk    model.DocumentChunk
	Distance float64
}

// Index is the nearest-neighbor store over the reference document's chunks.
// Rebuild embeds every chunk (one sequential provider call each) and persists
// the result; Load restores a previous build without any embedding calls.
// Search runs an exact scan and returns the k closest chunks by ascending
// Euclidean distance.
type Index interface {
	Load(ctx context.Context) (bool, error)
	Rebuild(ctx context.Context, sourceHash string, chunks []model.DocumentChunk) error
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
	SourceHash() string
	Len() int
}

// Args carries the non-JSON dependencies every backend needs next to its own
// decoded config.
type Args struct {
	Embedder ai.IEmbedder
	Data     interface{}
}

type Factory func(args Args) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(indexType string, args Args) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(indexType))
	if key == "" {
		return nil, fmt.Errorf("index type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index type: %s", indexType)
	}
	if args.Embedder == nil {
		return nil, fmt.Errorf("index embedder is required")
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}
