package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
)

// #region eval-harness
// EvalHarness validates a scoring result after the fact. Failures are
// informational; callers log them and carry on.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks percentage sum, ranking uniqueness, ranking coverage and order.
func (h *EvalHarness) Run(res scoring.Result) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Percentages add up to 100, or to 0 when nothing scored
	sum := scoring.PercentageSum(res)
	sumPass := math.Abs(sum-100) <= h.config.PercentTolerance+1e-9
	if res.Total == 0 {
		sumPass = sum == 0
	}
	check("percentage_sum", sum, sumPass,
		fmt.Sprintf("percentage sum %.2f outside 100±%.2f", sum, h.config.PercentTolerance))

	// 2. Each bucket ranked once
	seen := make(map[bucket.Code]bool, len(res.Ranking))
	dupes := 0
	for _, b := range res.Ranking {
		if seen[b] {
			dupes++
		}
		seen[b] = true
	}
	check("ranking_duplicates", float64(dupes), dupes == 0,
		fmt.Sprintf("ranking has %d duplicate buckets", dupes))

	// 3. Ranking covers every scored bucket
	missing := 0
	for _, s := range res.Scores {
		if !seen[s.Bucket] {
			missing++
		}
	}
	coverPass := missing == 0 && len(res.Ranking) == len(res.Scores)
	check("ranking_coverage", float64(len(res.Ranking)), coverPass,
		fmt.Sprintf("ranking has %d entries for %d scores (%d missing)", len(res.Ranking), len(res.Scores), missing))

	// 4. Scores are non-increasing along the ranking
	inversions := 0
	for i := 1; i < len(res.Scores); i++ {
		if res.Scores[i].Score > res.Scores[i-1].Score {
			inversions++
		}
	}
	check("ranking_order", float64(inversions), inversions == 0,
		fmt.Sprintf("ranking has %d score inversions", inversions))

	// 5. Top margin: informational only, does not fail
	margin := 0.0
	if len(res.Scores) > 1 {
		margin = res.Scores[0].Percentage - res.Scores[1].Percentage
	} else if len(res.Scores) == 1 {
		margin = res.Scores[0].Percentage
	}
	metrics = append(metrics, EvalMetric{Name: "top_margin", Value: margin, Pass: margin >= h.config.MinTopMargin})

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness
