// Package fusion merges the weight-derived bucket ranking with an external
// ranking using position-reciprocal scores.
package fusion

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// DefaultRatio weights the internal ranking over the external one.
const DefaultRatio = 0.6

var ErrInvalidRatio = errors.New("weight ratio must be within [0, 1]")

// #region merger

// Merger fuses two rankings. Ratio is the share given to the weight ranking.
type Merger struct {
	Ratio float64
}

func NewMerger(ratio float64) (*Merger, error) {
	if math.IsNaN(ratio) || ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRatio, ratio)
	}
	return &Merger{Ratio: ratio}, nil
}

// Contribution is the fused score of one bucket split by source.
type Contribution struct {
	Bucket        bucket.Code `json:"bucket"`
	WeightScore   float64     `json:"weight_score"`
	ExternalScore float64     `json:"external_score"`
	Total         float64     `json:"total"`

	weightPos   int
	externalPos int
}

// Merge returns the consensus ranking. An empty external ranking returns a
// copy of the weight ranking.
func (m *Merger) Merge(weight, external bucket.RankedList) bucket.RankedList {
	if len(external) == 0 {
		metrics.FusionPassthrough.Inc()
		return append(bucket.RankedList(nil), weight...)
	}
	contribs := m.Breakdown(weight, external)
	out := make(bucket.RankedList, len(contribs))
	for i, c := range contribs {
		out[i] = c.Bucket
	}
	return out
}

// Breakdown scores every bucket that appears in either list, sorted the same
// way Merge orders them.
func (m *Merger) Breakdown(weight, external bucket.RankedList) []Contribution {
	index := make(map[bucket.Code]int)
	var contribs []Contribution
	get := func(b bucket.Code) *Contribution {
		if i, ok := index[b]; ok {
			return &contribs[i]
		}
		index[b] = len(contribs)
		contribs = append(contribs, Contribution{Bucket: b, weightPos: -1, externalPos: -1})
		return &contribs[len(contribs)-1]
	}

	for i, b := range weight {
		c := get(b)
		if c.weightPos >= 0 {
			continue
		}
		c.weightPos = i
		c.WeightScore = m.Ratio / float64(i+1)
	}
	for i, b := range external {
		c := get(b)
		if c.externalPos >= 0 {
			continue
		}
		c.externalPos = i
		c.ExternalScore = (1 - m.Ratio) / float64(i+1)
	}
	for i := range contribs {
		contribs[i].Total = contribs[i].WeightScore + contribs[i].ExternalScore
	}

	sort.SliceStable(contribs, func(a, b int) bool {
		ca, cb := contribs[a], contribs[b]
		if ca.Total != cb.Total {
			return ca.Total > cb.Total
		}
		if pa, pb := rankKey(ca.weightPos), rankKey(cb.weightPos); pa != pb {
			return pa < pb
		}
		return rankKey(ca.externalPos) < rankKey(cb.externalPos)
	})
	return contribs
}

// rankKey sorts absent buckets after present ones.
func rankKey(pos int) int {
	if pos < 0 {
		return math.MaxInt
	}
	return pos
}

// #endregion merger

// #region discrepancy

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Discrepancy reports that the two rankings disagree on the top bucket.
type Discrepancy struct {
	Type            string            `json:"type"`
	WeightRanking   bucket.RankedList `json:"weight_ranking"`
	ExternalRanking bucket.RankedList `json:"external_ranking"`
	Message         string            `json:"message"`
	Severity        Severity          `json:"severity"`
}

// DetectDiscrepancy returns nil when either list is empty or both agree on
// the top bucket. It is critical when the weight top bucket is not among the
// external top two.
func DetectDiscrepancy(weight, external bucket.RankedList) *Discrepancy {
	wTop, ok := weight.Top()
	if !ok {
		return nil
	}
	eTop, ok := external.Top()
	if !ok || wTop == eTop {
		return nil
	}

	sev := SeverityCritical
	if pos := external.Position(wTop); pos >= 0 && pos < 2 {
		sev = SeverityWarning
	}
	return &Discrepancy{
		Type:            "top_bucket_mismatch",
		WeightRanking:   weight,
		ExternalRanking: external,
		Message:         fmt.Sprintf("weight ranking favours %s, external evidence favours %s", wTop, eTop),
		Severity:        sev,
	}
}

// #endregion discrepancy
