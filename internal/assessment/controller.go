package assessment

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// #region config

// RPE bands for the adjustment window.
const (
	TooEasyBelow = 7.0
	TooHardAbove = 11.0
)

type Config struct {
	StaleAfter time.Duration
	CycleSize  int
}

func DefaultConfig() Config {
	return Config{
		StaleAfter: 7 * 24 * time.Hour,
		CycleSize:  3,
	}
}

// #endregion config

// #region controller

// Controller is stateless; every call is a pure function of its inputs.
type Controller struct {
	config Config
}

func NewController(config Config) *Controller {
	def := DefaultConfig()
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.CycleSize < 1 {
		config.CycleSize = def.CycleSize
	}
	return &Controller{config: config}
}

func (c *Controller) Config() Config { return c.config }

// Process classifies the history at time now and computes the adjustment
// for the trailing window once a full cycle is available.
func (c *Controller) Process(h History, now time.Time) Result {
	res := c.process(h, now)
	metrics.ControllerStatus.WithLabelValues(string(res.Status)).Inc()
	return res
}

func (c *Controller) process(h History, now time.Time) Result {
	// 1. No history at all
	if len(h.Records) == 0 {
		return Result{
			Status:                  StatusFreshStart,
			Message:                 "First session: recommendations use the intake assessment only.",
			SessionsUntilAdjustment: c.config.CycleSize,
		}
	}

	// 2. Stale history
	var daysSince *int
	if h.LastAt != nil {
		elapsed := now.Sub(*h.LastAt)
		if elapsed < 0 {
			elapsed = 0
		}
		days := int(elapsed / (24 * time.Hour))
		daysSince = &days
		if elapsed >= c.config.StaleAfter {
			return Result{
				Status:                  StatusReset,
				Message:                 fmt.Sprintf("%d days since the last session: history reset, starting over.", days),
				DaysSinceLast:           daysSince,
				SessionsUntilAdjustment: c.config.CycleSize,
			}
		}
	}

	n := len(h.Records)
	completion := completionAverage(h.Records)

	// 3. Not enough sessions for a cycle
	if n < c.config.CycleSize {
		avg := averageRPE(h.Records)
		remaining := c.config.CycleSize - n
		return Result{
			Status:                  StatusNormal,
			Message:                 fmt.Sprintf("%d session(s) completed. Difficulty adjusts after %d more.", n, remaining),
			SessionsAnalyzed:        n,
			SessionsUntilAdjustment: remaining,
			DaysSinceLast:           daysSince,
			AverageRPE:              &avg,
			CompletionRateAvg:       completion,
		}
	}

	// 4. Full cycle over the trailing window
	window := h.Records[n-c.config.CycleSize:]
	summary := Summarize(window)
	adj := AdjustmentFor(summary.RPE)
	trend := TrendOf(window)
	avg := summary.RPE

	return Result{
		Status:                  StatusNormal,
		Adjustment:              &adj,
		Message:                 adjustmentMessage(adj, avg),
		SessionsAnalyzed:        n,
		SessionsUntilAdjustment: 0,
		DaysSinceLast:           daysSince,
		AverageRPE:              &avg,
		Trend:                   &trend,
		CompletionRateAvg:       completion,
		Cycle:                   &summary,
	}
}

// ShouldPromptAssessment reports whether the next session closes a cycle.
func (c *Controller) ShouldPromptAssessment(h History) bool {
	n := len(h.Records)
	return n > 0 && (n+1)%c.config.CycleSize == 0
}

// #endregion controller

// #region policy

// AdjustmentFor maps a window's average RPE to a delta set.
func AdjustmentFor(avgRPE float64) Adjustment {
	switch {
	case avgRPE < TooEasyBelow:
		return NewAdjustment(1, 1, 2, -10)
	case avgRPE > TooHardAbove:
		return NewAdjustment(-1, -1, -2, 10)
	default:
		return Adjustment{}
	}
}

// TrendOf compares the first and last RPE totals of the window.
// Falling effort is improvement.
func TrendOf(window []Record) Trend {
	if len(window) == 0 {
		return TrendStable
	}
	first := window[0].RPETotal()
	last := window[len(window)-1].RPETotal()
	switch {
	case last < first-1:
		return TrendImproving
	case last > first+1:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Summarize averages each sub-score over records.
func Summarize(records []Record) CycleSummary {
	s := CycleSummary{Sessions: len(records)}
	if len(records) == 0 {
		return s
	}
	for _, r := range records {
		s.DifficultyFelt += float64(r.DifficultyFelt)
		s.MuscleStimulus += float64(r.MuscleStimulus)
		s.SweatLevel += float64(r.SweatLevel)
	}
	n := float64(len(records))
	s.DifficultyFelt /= n
	s.MuscleStimulus /= n
	s.SweatLevel /= n
	s.RPE = averageRPE(records)
	return s
}

func averageRPE(records []Record) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0
	for _, r := range records {
		sum += r.RPETotal()
	}
	return float64(sum) / float64(len(records))
}

// completionAverage covers every record carrying completion data.
func completionAverage(records []Record) *float64 {
	var sum float64
	var n int
	for _, r := range records {
		if rate, ok := r.CompletionRate(); ok {
			sum += rate
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func adjustmentMessage(adj Adjustment, avg float64) string {
	switch {
	case adj.Difficulty > 0:
		return fmt.Sprintf("Average RPE %.1f: sessions felt easy, raising difficulty.", avg)
	case adj.Difficulty < 0:
		return fmt.Sprintf("Average RPE %.1f: sessions felt hard, lowering difficulty.", avg)
	default:
		return fmt.Sprintf("Average RPE %.1f: current difficulty fits.", avg)
	}
}

// #endregion policy
