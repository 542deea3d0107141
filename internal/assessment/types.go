package assessment

import (
	"errors"
	"fmt"
	"time"
)

// #region record

var ErrInvalidRecord = errors.New("invalid assessment record")

// Record is one post-session self report. Sub-scores are 1-5; their sum is
// the RPE total (3-15).
type Record struct {
	ID               string    `json:"id,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
	DifficultyFelt   int       `json:"difficulty_felt"`
	MuscleStimulus   int       `json:"muscle_stimulus"`
	SweatLevel       int       `json:"sweat_level"`
	Pain             *int      `json:"pain,omitempty"`
	CompletedSets    *int      `json:"completed_sets,omitempty"`
	TotalSets        *int      `json:"total_sets,omitempty"`
	SkippedExercises []string  `json:"skipped_exercises,omitempty"`
}

// RPETotal is the sum of the three sub-scores.
func (r Record) RPETotal() int {
	return r.DifficultyFelt + r.MuscleStimulus + r.SweatLevel
}

// CompletionRate is completed/total sets, present only when both counts are
// known and the total is positive.
func (r Record) CompletionRate() (float64, bool) {
	if r.CompletedSets == nil || r.TotalSets == nil || *r.TotalSets <= 0 {
		return 0, false
	}
	return float64(*r.CompletedSets) / float64(*r.TotalSets), true
}

// Validate checks value ranges.
func (r Record) Validate() error {
	for name, v := range map[string]int{
		"difficulty_felt": r.DifficultyFelt,
		"muscle_stimulus": r.MuscleStimulus,
		"sweat_level":     r.SweatLevel,
	} {
		if v < 1 || v > 5 {
			return fmt.Errorf("%w: %s=%d outside 1-5", ErrInvalidRecord, name, v)
		}
	}
	if r.Pain != nil && (*r.Pain < 0 || *r.Pain > 10) {
		return fmt.Errorf("%w: pain=%d outside 0-10", ErrInvalidRecord, *r.Pain)
	}
	if r.CompletedSets != nil && *r.CompletedSets < 0 {
		return fmt.Errorf("%w: completed_sets=%d is negative", ErrInvalidRecord, *r.CompletedSets)
	}
	if r.TotalSets != nil && *r.TotalSets < 0 {
		return fmt.Errorf("%w: total_sets=%d is negative", ErrInvalidRecord, *r.TotalSets)
	}
	if r.CompletedSets != nil && r.TotalSets != nil && *r.CompletedSets > *r.TotalSets {
		return fmt.Errorf("%w: completed_sets %d exceeds total_sets %d", ErrInvalidRecord, *r.CompletedSets, *r.TotalSets)
	}
	return nil
}

// History is a chronological run of records. LastAt is the time of the most
// recent one; it may be set by the caller independently of Records.
type History struct {
	Records []Record   `json:"records"`
	LastAt  *time.Time `json:"last_at,omitempty"`
}

// HistoryOf builds a History whose LastAt is the newest RecordedAt.
func HistoryOf(records ...Record) History {
	h := History{Records: records}
	for _, r := range records {
		if r.RecordedAt.IsZero() {
			continue
		}
		if h.LastAt == nil || r.RecordedAt.After(*h.LastAt) {
			t := r.RecordedAt
			h.LastAt = &t
		}
	}
	return h
}

// #endregion record

// #region adjustment

// Delta bounds.
const (
	MaxDifficultyStep = 2
	MaxSetsStep       = 2
	MaxRepsStep       = 5
	MaxRestStep       = 15
)

// Adjustment is a bounded set of program deltas. Construct with NewAdjustment
// or the With* methods; every value is clamped to its bound.
type Adjustment struct {
	Difficulty  int `json:"difficulty_delta"`
	Sets        int `json:"sets_delta"`
	Reps        int `json:"reps_delta"`
	RestSeconds int `json:"rest_delta"`
}

func NewAdjustment(difficulty, sets, reps, rest int) Adjustment {
	return Adjustment{
		Difficulty:  clamp(difficulty, MaxDifficultyStep),
		Sets:        clamp(sets, MaxSetsStep),
		Reps:        clamp(reps, MaxRepsStep),
		RestSeconds: clamp(rest, MaxRestStep),
	}
}

func (a Adjustment) HasChanges() bool {
	return a != Adjustment{}
}

func (a Adjustment) WithDifficulty(v int) Adjustment {
	a.Difficulty = clamp(v, MaxDifficultyStep)
	return a
}

func (a Adjustment) WithSets(v int) Adjustment {
	a.Sets = clamp(v, MaxSetsStep)
	return a
}

func (a Adjustment) WithReps(v int) Adjustment {
	a.Reps = clamp(v, MaxRepsStep)
	return a
}

func (a Adjustment) WithRestSeconds(v int) Adjustment {
	a.RestSeconds = clamp(v, MaxRestStep)
	return a
}

func clamp(v, bound int) int {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

// #endregion adjustment

// #region result

type Status string

const (
	StatusFreshStart Status = "fresh_start"
	StatusReset      Status = "reset"
	StatusNormal     Status = "normal"
)

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// CycleSummary averages each sub-score over the adjustment window.
type CycleSummary struct {
	Sessions       int     `json:"sessions"`
	DifficultyFelt float64 `json:"difficulty_felt"`
	MuscleStimulus float64 `json:"muscle_stimulus"`
	SweatLevel     float64 `json:"sweat_level"`
	RPE            float64 `json:"rpe"`
}

// Result is the controller's view of a patient's continuity state.
// Adjustment is nil unless a full cycle was analyzed.
type Result struct {
	Status                  Status        `json:"status"`
	Adjustment              *Adjustment   `json:"adjustment,omitempty"`
	Message                 string        `json:"message"`
	SessionsAnalyzed        int           `json:"sessions_analyzed"`
	SessionsUntilAdjustment int           `json:"sessions_until_adjustment"`
	DaysSinceLast           *int          `json:"days_since_last,omitempty"`
	AverageRPE              *float64      `json:"average_rpe,omitempty"`
	Trend                   *Trend        `json:"trend,omitempty"`
	CompletionRateAvg       *float64      `json:"completion_rate_avg,omitempty"`
	Cycle                   *CycleSummary `json:"cycle,omitempty"`
}

// #endregion result
