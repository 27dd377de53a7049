package document

import (
	"github.com/carelink/clinassist/internal/model"
)

const DefaultChunkSize = 500

// Split slices text into contiguous, non-overlapping chunks of at most
// chunkSize characters (runes, so multi-byte text never splits mid-character).
// No boundary awareness on purpose: positions must stay stable across runs so
// persisted embeddings keep lining up with their chunks.
func Split(text string, chunkSize int) []model.DocumentChunk {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	runes := []rune(text)
	var chunks []model.DocumentChunk
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, model.DocumentChunk{
			Position: len(chunks),
			Text:     string(runes[start:end]),
		})
	}
	return chunks
}
