package vectorindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/document"
)

// Builder decides at startup (and on refresh) whether the index can be loaded
// from persisted artifacts or must be rebuilt. Rebuilds only happen when the
// source document's content hash changed; otherwise no embedding call is made.
type Builder struct {
	index        Index
	documentPath string
	chunkSize    int
}

func NewBuilder(index Index, documentPath string, chunkSize int) *Builder {
	return &Builder{index: index, documentPath: documentPath, chunkSize: chunkSize}
}

func (b *Builder) Ensure(ctx context.Context) error {
	text, err := document.Load(b.documentPath)
	if err != nil {
		return err
	}
	hash := sha256.Sum256([]byte(text))
	sourceHash := hex.EncodeToString(hash[:])

	loaded, err := b.index.Load(ctx)
	if err != nil {
		return err
	}
	if loaded && b.index.SourceHash() == sourceHash {
		logutil.GetLogger(ctx).Debug("vector index up to date", zap.Int("chunks", b.index.Len()))
		return nil
	}
	if loaded {
		logutil.GetLogger(ctx).Info("source document changed, rebuilding index")
	}
	chunks := document.Split(text, b.chunkSize)
	return b.index.Rebuild(ctx, sourceHash, chunks)
}
