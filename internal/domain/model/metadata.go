package model

// StoryMetadata is everything derived from a completed outline besides the
// embedding. Tags and trigger warnings are stored lower-cased; duplicates are
// not removed (known gap, kept deliberately).
type StoryMetadata struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	TriggerWarnings []string `json:"trigger_warnings"`
	IsExplicit      bool     `json:"is_explicit"`
	TargetAudience  []string `json:"target_audience"`
}

// EmbeddingDimensions is the fixed width of the semantic embedding vector.
// A zero vector of this length substitutes when the provider is unavailable.
const EmbeddingDimensions = 1536

// ZeroEmbedding returns the all-zero fallback vector.
func ZeroEmbedding() []float64 { return make([]float64, EmbeddingDimensions) }
