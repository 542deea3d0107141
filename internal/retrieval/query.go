package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
)

// #region stopwords
// stopwords contains common English words excluded from query building.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "do": true, "does": true, "did": true,
	"have": true, "has": true, "had": true, "be": true, "been": true,
	"will": true, "would": true, "could": true, "should": true, "can": true,
	"not": true, "no": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "so": true, "as": true, "at": true,
	"by": true, "for": true, "from": true, "in": true, "into": true,
	"of": true, "on": true, "to": true, "with": true, "when": true,
	"it": true, "its": true, "this": true, "that": true, "my": true,
	"me": true, "i": true, "gte": true,
}

// tokenize splits text into unique lowercase non-stopword tokens.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]bool)
	var tokens []string
	for _, w := range words {
		if len(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// sharedKeywords returns the count of tokens present in both slices.
func sharedKeywords(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

// #endregion stopwords

// #region query
// BuildQuery joins the body region, symptom codes and free-text description
// into one keyword query. Demographic codes carry no search signal.
func BuildQuery(category bucket.Category, symptoms []string, description string) string {
	parts := []string{string(category)}
	for _, s := range symptoms {
		if strings.HasPrefix(s, "age_") || strings.HasPrefix(s, "bmi_") || strings.HasPrefix(s, "sex_") {
			continue
		}
		parts = append(parts, strings.ReplaceAll(s, "_", " "))
	}
	parts = append(parts, description)
	return strings.Join(tokenize(strings.Join(parts, " ")), " ")
}

// #endregion query

// #region memory-searcher
// MemorySearcher is a keyword-overlap Searcher over an in-process corpus,
// used by replay and when no remote search service is configured.
type MemorySearcher struct {
	mu   sync.RWMutex
	docs map[bucket.Category][]memoryDoc
}

type memoryDoc struct {
	hit    Hit
	tokens []string
}

func NewMemorySearcher() *MemorySearcher {
	return &MemorySearcher{docs: make(map[bucket.Category][]memoryDoc)}
}

// Add indexes a document under a category. Score on the stored hit is ignored.
func (m *MemorySearcher) Add(category bucket.Category, h Hit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[category] = append(m.docs[category], memoryDoc{
		hit:    h,
		tokens: tokenize(h.Title + " " + h.Text),
	})
}

// Search scores each document by the share of query tokens it contains.
func (m *MemorySearcher) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := tokenize(req.Query)
	if len(query) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	docs := m.docs[req.Category]
	m.mu.RUnlock()

	var hits []Hit
	for _, d := range docs {
		shared := sharedKeywords(query, d.tokens)
		if shared == 0 {
			continue
		}
		h := d.hit
		h.Score = float32(shared) / float32(len(query))
		if h.Score < req.MinScore {
			continue
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if req.TopK > 0 && len(hits) > req.TopK {
		hits = hits[:req.TopK]
	}
	return hits, nil
}

// #endregion memory-searcher
