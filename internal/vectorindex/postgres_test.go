package vectorindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanChunkMigrations_ProvisionSchema(t *testing.T) {
	require.NotEmpty(t, planChunkMigrations)

	var extension, table bool
	for _, stmt := range planChunkMigrations {
		// Every statement must survive a restart against an existing deploy.
		require.Contains(t, stmt, "IF NOT EXISTS")
		if strings.Contains(stmt, "CREATE EXTENSION") && strings.Contains(stmt, "vector") {
			extension = true
		}
		if strings.Contains(stmt, "CREATE TABLE") && strings.Contains(stmt, planChunkTable) {
			table = true
		}
	}
	require.True(t, extension, "pgvector extension must be provisioned")
	require.True(t, table, "chunk table must be provisioned")

	for _, column := range []string{"position", "content", "source_hash", "embedding"} {
		require.Contains(t, planChunkMigrations[1], column)
	}
}
