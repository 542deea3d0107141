package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// #region ranker
// Ranker turns external evidence into a bucket ranking.
type Ranker struct {
	searcher Searcher
	config   Config
	log      *logging.Logger
}

// NewRanker creates a Ranker. A nil searcher disables retrieval.
func NewRanker(searcher Searcher, config Config, log *logging.Logger) *Ranker {
	return &Ranker{searcher: searcher, config: config, log: logging.OrNop(log)}
}

// #endregion ranker

// #region rank
// Rank runs the 3-gate pipeline and never fails:
//  1. Gate 1 (Availability): skip when no searcher is configured or the query is empty
//  2. Gate 2 (Similarity): drop hits below MinScore
//  3. Gate 3 (Consistency): drop empty, overlong and duplicate hits
//
// Searcher errors degrade to an empty ranking so fusion falls back to the
// weight ranking.
func (r *Ranker) Rank(ctx context.Context, category bucket.Category, query string) GateResult {
	result := GateResult{}

	// Gate 1
	if r.searcher == nil {
		result.Reason = "gate1: no searcher configured"
		return result
	}
	if strings.TrimSpace(query) == "" {
		result.Reason = "gate1: empty query"
		return result
	}
	result.Gate1Passed = true

	hits, err := r.searcher.Search(ctx, SearchRequest{
		Category: category,
		Query:    query,
		TopK:     r.config.TopK,
		MinScore: r.config.MinScore,
	})
	if err != nil {
		metrics.RetrievalDegraded.WithLabelValues("search_error").Inc()
		r.log.Warn("evidence search failed, continuing without external ranking",
			"category", category, "error", err)
		result.Degraded = true
		result.Reason = fmt.Sprintf("degraded: %v", err)
		return result
	}

	// Gate 2
	passed := lo.Filter(hits, func(h Hit, _ int) bool { return h.Score >= r.config.MinScore })
	result.Gate2Count = len(passed)
	if result.Gate2Count == 0 {
		metrics.RetrievalDegraded.WithLabelValues("no_hits").Inc()
		result.Reason = "gate2: no results above similarity threshold"
		return result
	}

	// Gate 3
	result.Retrieved = r.consistencyCheck(passed)
	result.Gate3Count = len(result.Retrieved)
	if result.Gate3Count == 0 {
		metrics.RetrievalDegraded.WithLabelValues("inconsistent").Inc()
		result.Reason = "gate3: all results failed consistency check"
		return result
	}

	sort.SliceStable(result.Retrieved, func(i, j int) bool {
		return result.Retrieved[i].Score > result.Retrieved[j].Score
	})
	result.Ranking = RankByTags(result.Retrieved)
	result.Reason = fmt.Sprintf("retrieved %d evidence items (gate2=%d, gate3=%d)",
		result.Gate3Count, result.Gate2Count, result.Gate3Count)
	r.log.Debug("evidence ranking", "category", category, "ranking", result.Ranking.Strings(), "evidence", result.Gate3Count)
	return result
}

// #endregion rank

// #region consistency-check
// consistencyCheck validates hits against basic constraints:
//   - Non-empty ID and text
//   - Text within MaxEvidenceLen
//   - No duplicate IDs
func (r *Ranker) consistencyCheck(hits []Hit) []Evidence {
	seen := make(map[string]bool)
	var valid []Evidence

	for _, h := range hits {
		if h.ID == "" || strings.TrimSpace(h.Text) == "" {
			continue
		}
		if r.config.MaxEvidenceLen > 0 && len(h.Text) > r.config.MaxEvidenceLen {
			continue
		}
		if seen[h.ID] {
			continue
		}
		seen[h.ID] = true
		source, layer := classifySource(h.Source)
		valid = append(valid, Evidence{
			ID:     h.ID,
			Title:  h.Title,
			Text:   h.Text,
			Score:  h.Score,
			Source: source,
			Layer:  layer,
			Tags:   ParseTags(h.Buckets),
		})
	}

	return valid
}

// #endregion consistency-check

// #region tags
// ParseTags splits a comma-separated tag string into known bucket codes.
// Unknown tags and the "research" marker are dropped.
func ParseTags(raw string) []bucket.Code {
	var tags []bucket.Code
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.EqualFold(part, "research") {
			continue
		}
		if c, err := bucket.Parse(part); err == nil {
			tags = append(tags, c)
		}
	}
	return lo.Uniq(tags)
}

// Distribution counts how many evidence items carry each bucket tag.
func Distribution(evidence []Evidence) map[bucket.Code]int {
	counts := make(map[bucket.Code]int)
	for _, e := range evidence {
		for _, t := range e.Tags {
			counts[t]++
		}
	}
	return counts
}

// RankByTags orders buckets by tag count, descending. Equal counts keep the
// order in which the bucket first appeared.
func RankByTags(evidence []Evidence) bucket.RankedList {
	counts := Distribution(evidence)
	var order bucket.RankedList
	for _, e := range evidence {
		for _, t := range e.Tags {
			if order.Position(t) < 0 {
				order = append(order, t)
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	return order
}

// classifySource maps a raw source name to its evidence layer.
// Unknown sources are treated as verified papers.
func classifySource(source string) (string, int) {
	switch source {
	case "orthobullets":
		return source, 2
	case "pubmed":
		return source, 3
	default:
		return "verified_paper", 1
	}
}

// #endregion tags
