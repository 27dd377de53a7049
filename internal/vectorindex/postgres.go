package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carelink/clinassist/internal/ai"
	"github.com/carelink/clinassist/internal/model"
	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

const planChunkTable = "plan_chunks"

// planChunkMigrations provisions the schema on startup. Statements are
// idempotent so reconnecting against an existing deploy is a no-op. The
// vector column is declared without a dimension: the embedding model fixes it
// on first insert and vector_dims() reports it back on Load.
var planChunkMigrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS plan_chunks (
		position INTEGER PRIMARY KEY,
		content TEXT NOT NULL,
		source_hash TEXT NOT NULL,
		embedding vector NOT NULL
	)`,
}

type postgresConfig struct {
	DSN string `json:"dsn"`
}

// postgresIndex keeps the chunk sequence and embeddings in a pgvector table.
// The `<->` operator is exact L2 distance when no ANN index is defined on the
// column, which matches the exact-scan contract.
type postgresIndex struct {
	db       *sqlx.DB
	embedder ai.IEmbedder

	mu         sync.RWMutex
	sourceHash string
	count      int
	dim        int
}

func init() {
	Register("postgres", createPostgresIndex)
}

func createPostgresIndex(args Args) (Index, error) {
	cfg := &postgresConfig{}
	if err := decodeConfig(args.Data, cfg); err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres index dsn is required")
	}
	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := applyMigrations(context.Background(), db); err != nil {
		return nil, err
	}
	return &postgresIndex{db: db, embedder: args.Embedder}, nil
}

func applyMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range planChunkMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (p *postgresIndex) Load(ctx context.Context) (bool, error) {
	var row struct {
		SourceHash string `db:"source_hash"`
		Count      int    `db:"cnt"`
		Dim        int    `db:"dim"`
	}
	const query = `
		SELECT source_hash, COUNT(*) OVER () AS cnt, vector_dims(embedding) AS dim
		FROM plan_chunks
		LIMIT 1
	`
	err := p.db.GetContext(ctx, &row, query)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.mu.Lock()
	p.sourceHash = row.SourceHash
	p.count = row.Count
	p.dim = row.Dim
	p.mu.Unlock()
	logutil.GetLogger(ctx).Info("vector index loaded from postgres",
		zap.Int("chunks", row.Count),
		zap.Int("dim", row.Dim),
	)
	return true, nil
}

func (p *postgresIndex) Rebuild(ctx context.Context, sourceHash string, chunks []model.DocumentChunk) error {
	logger := logutil.GetLogger(ctx)
	logger.Info("building vector index", zap.Int("chunks", len(chunks)))

	type rowData struct {
		vec pgvector.Vector
		pos int
		txt string
	}
	rows := make([]rowData, 0, len(chunks))
	dim := 0
	for _, chunk := range chunks {
		vec, err := p.embedder.Embed(ctx, chunk.Text, TaskTypeDocument)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", chunk.Position, err)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return fmt.Errorf("chunk %d: %w", chunk.Position, appErr.ErrDimension)
		}
		rows = append(rows, rowData{vec: pgvector.NewVector(vec), pos: chunk.Position, txt: chunk.Text})
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_chunks`); err != nil {
		return err
	}
	for _, row := range rows {
		data := map[string]interface{}{
			"position":    row.pos,
			"content":     row.txt,
			"source_hash": sourceHash,
			"embedding":   row.vec,
		}
		sqlStr, args, err := builder.BuildInsert(planChunkTable, []map[string]interface{}{data})
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, p.db.Rebind(sqlStr), args...); err != nil {
			return fmt.Errorf("insert chunk %d: %w", row.pos, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	p.mu.Lock()
	p.sourceHash = sourceHash
	p.count = len(chunks)
	p.dim = dim
	p.mu.Unlock()
	logger.Info("vector index built", zap.Int("chunks", len(chunks)), zap.Int("dim", dim))
	return nil
}

func (p *postgresIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	p.mu.RLock()
	count, dim := p.count, p.dim
	p.mu.RUnlock()
	if count == 0 {
		return nil, appErr.ErrIndexEmpty
	}
	if len(query) != dim {
		return nil, fmt.Errorf("query dim %d, index dim %d: %w", len(query), dim, appErr.ErrDimension)
	}
	if k <= 0 {
		k = 1
	}

	const sqlStr = `
		SELECT position, content, embedding <-> $1 AS distance
		FROM plan_chunks
		ORDER BY distance ASC, position ASC
		LIMIT $2
	`
	rows, err := p.db.QueryContext(ctx, sqlStr, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []SearchResult
	for rows.Next() {
		var item SearchResult
		if err := rows.Scan(&item.Chunk.Position, &item.Chunk.Text, &item.Distance); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func (p *postgresIndex) SourceHash() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sourceHash
}

func (p *postgresIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.count
}
