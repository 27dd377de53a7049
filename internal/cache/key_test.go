package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_QuestionOnlyWithoutMRN(t *testing.T) {
	sum := sha256.Sum256([]byte("What is the copay?"))
	require.Equal(t, hex.EncodeToString(sum[:]), Key("", "What is the copay?"))
}

func TestKey_ScopedByMRN(t *testing.T) {
	withMRN := Key("MRN-1", "What is the copay?")
	otherMRN := Key("MRN-2", "What is the copay?")
	noMRN := Key("", "What is the copay?")

	require.NotEqual(t, withMRN, otherMRN)
	require.NotEqual(t, withMRN, noMRN)
	require.Equal(t, withMRN, Key("MRN-1", "What is the copay?"))
}

func TestKey_NoNormalization(t *testing.T) {
	require.NotEqual(t, Key("", "what is the copay?"), Key("", "What is the copay?"))
	require.NotEqual(t, Key("", "question"), Key("", "question "))
}
