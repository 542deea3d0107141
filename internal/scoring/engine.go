package scoring

import (
	"context"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

// #region types

// BucketScore is the accumulated weight of one bucket.
type BucketScore struct {
	Bucket               bucket.Code `json:"bucket"`
	Score                float64     `json:"score"`
	Percentage           float64     `json:"percentage"`
	ContributingSymptoms []string    `json:"contributing_symptoms"`
}

// Result holds one score per bucket in ranking order.
type Result struct {
	Category bucket.Category   `json:"category"`
	Scores   []BucketScore     `json:"scores"`
	Ranking  bucket.RankedList `json:"ranking"`
	Total    float64           `json:"total"`
	Unknown  []string          `json:"unknown_symptoms,omitempty"`
}

// TableGetter resolves a category's weight table. *weights.Store satisfies it.
type TableGetter interface {
	Get(ctx context.Context, category bucket.Category) (*weights.Table, error)
}

// #endregion types

// #region engine

// Engine scores symptom sets against the weight tables of a store.
type Engine struct {
	tables TableGetter
	log    *logging.Logger
}

func NewEngine(tables TableGetter, log *logging.Logger) *Engine {
	return &Engine{tables: tables, log: logging.OrNop(log)}
}

// Score loads the category's table and scores symptoms against it.
// A missing table is returned as an error wrapping weights.ErrNotProvisioned.
func (e *Engine) Score(ctx context.Context, category bucket.Category, symptoms []string) (Result, error) {
	table, err := e.tables.Get(ctx, category)
	if err != nil {
		return Result{}, err
	}
	res := Compute(table, symptoms)
	if len(res.Unknown) > 0 {
		metrics.UnknownSymptoms.WithLabelValues(string(category)).Add(float64(len(res.Unknown)))
		e.log.Debug("ignored unknown symptoms", "category", category, "symptoms", res.Unknown)
	}
	return res, nil
}

// #endregion engine

// #region compute

// Compute is the pure scoring step. Duplicate symptoms count once; symptoms
// missing from the table are reported in Result.Unknown and otherwise ignored.
func Compute(table *weights.Table, symptoms []string) Result {
	order := table.Order()
	acc := make([]float64, len(order))
	contributing := make([][]string, len(order))

	var unknown []string
	for _, symptom := range lo.Uniq(symptoms) {
		vec, ok := table.Vector(symptom)
		if !ok {
			unknown = append(unknown, symptom)
			continue
		}
		for i, w := range vec {
			if w > 0 {
				acc[i] += w
				contributing[i] = append(contributing[i], symptom)
			}
		}
	}

	total := lo.Sum(acc)

	pct := percentages(acc, total)
	scores := make([]BucketScore, len(order))
	for i, b := range order {
		contrib := contributing[i]
		sort.Strings(contrib)
		if contrib == nil {
			contrib = []string{}
		}
		scores[i] = BucketScore{
			Bucket:               b,
			Score:                round(acc[i], 2),
			Percentage:           pct[i],
			ContributingSymptoms: contrib,
		}
	}
	// Equal scores keep their bucket-order position.
	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].Score > scores[b].Score
	})

	return Result{
		Category: table.Category(),
		Scores:   scores,
		Ranking:  lo.Map(scores, func(s BucketScore, _ int) bucket.Code { return s.Bucket }),
		Total:    round(total, 2),
		Unknown:  unknown,
	}
}

// percentages splits 100 across acc in tenths of a percent. Each share is
// floored and the leftover tenths go to the largest remainders, so a
// non-zero total always sums to exactly 100.0.
func percentages(acc []float64, total float64) []float64 {
	out := make([]float64, len(acc))
	if total == 0 {
		return out
	}
	tenths := make([]int, len(acc))
	rem := make([]float64, len(acc))
	left := 1000
	for i, v := range acc {
		exact := v / total * 1000
		tenths[i] = int(math.Floor(exact + 1e-9))
		rem[i] = exact - float64(tenths[i])
		left -= tenths[i]
	}
	idx := make([]int, len(acc))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rem[idx[a]] > rem[idx[b]] })
	for k := 0; k < left && k < len(idx); k++ {
		tenths[idx[k]]++
	}
	for i, t := range tenths {
		out[i] = float64(t) / 10
	}
	return out
}

// ScoreMap indexes a result's scores by bucket.
func ScoreMap(res Result) map[bucket.Code]float64 {
	return lo.SliceToMap(res.Scores, func(s BucketScore) (bucket.Code, float64) {
		return s.Bucket, s.Score
	})
}

// PercentageSum adds up the percentages of a result.
func PercentageSum(res Result) float64 {
	return lo.SumBy(res.Scores, func(s BucketScore) float64 { return s.Percentage })
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// #endregion compute
