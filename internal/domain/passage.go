package domain

// KeyPrefix namespaces every key this service writes to the store.
const KeyPrefix = "pasichat:"

// Match is a retrieval hit: stored passage content with its cosine
// similarity to the query embedding, in [-1, 1].
type Match struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
