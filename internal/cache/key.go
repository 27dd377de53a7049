package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key derives the cache key for a question. The raw question text is hashed
// without any normalization: case or whitespace differences are distinct
// entries. When the loaded patient carries an MRN the key is scoped by it so
// two patients never see each other's cached answers.
func Key(mrn, question string) string {
	input := question
	if mrn != "" {
		input = mrn + "\n" + question
	}
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
