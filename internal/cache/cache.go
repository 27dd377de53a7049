package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a computed answer stays valid. Entries expire by TTL
// only; there is no explicit invalidation.
const DefaultTTL = time.Hour

// Store maps a content-hash key to a previously computed answer. Writes are
// unconditional overwrites; entries are immutable once written, so concurrent
// duplicate writes are benign.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Factory func(args interface{}) (Store, error)

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

func New(cacheType string, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(cacheType))
	if key == "" {
		return nil, fmt.Errorf("cache type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode cache config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode cache config: %w", err)
	}
	return nil
}
