package model

// DocumentChunk is one bounded slice of the reference document. Position is the
// chunk's ordinal in the source order and the join key to its embedding.
type DocumentChunk struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}
