package retrieval

import (
	"context"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// #region config
// Config holds thresholds and limits for the 3-gate evidence pipeline.
type Config struct {
	MinScore       float32 // Gate 2: min similarity score
	TopK           int     // Max hits requested from the searcher
	MaxEvidenceLen int     // Gate 3: max chars per evidence text, 0 = unlimited
}

// DefaultConfig returns the retrieval defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:       0.35,
		TopK:           10,
		MaxEvidenceLen: 4000,
	}
}

// #endregion config

// #region searcher
// SearchRequest is one similarity query scoped to a body region.
type SearchRequest struct {
	Category bucket.Category `json:"category"`
	Query    string          `json:"query"`
	TopK     int             `json:"top_k"`
	MinScore float32         `json:"min_score"`
}

// Hit is a raw search result. Buckets is the comma-separated tag string
// stored alongside the document.
type Hit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
	Source  string  `json:"source"`
	Buckets string  `json:"bucket"`
	Year    int     `json:"year,omitempty"`
	URL     string  `json:"url,omitempty"`
}

// Searcher is the external similarity-search collaborator.
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)
}

// #endregion searcher

// #region evidence-record
// Evidence is a hit that passed the gates, with parsed bucket tags.
type Evidence struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Text   string        `json:"text"`
	Score  float32       `json:"score"`
	Source string        `json:"source"`
	Layer  int           `json:"layer"`
	Tags   []bucket.Code `json:"tags"`
}

// #endregion evidence-record

// #region gate-result
// GateResult captures the outcome of the 3-gate pipeline.
type GateResult struct {
	Gate1Passed bool              `json:"gate1_passed"` // searcher configured and query non-empty
	Gate2Count  int               `json:"gate2_count"`  // hits at or above MinScore
	Gate3Count  int               `json:"gate3_count"`  // hits passing consistency check
	Retrieved   []Evidence        `json:"retrieved"`
	Ranking     bucket.RankedList `json:"ranking"`
	Degraded    bool              `json:"degraded"` // searcher failed; ranking is empty
	Reason      string            `json:"reason"`
}

// #endregion gate-result
