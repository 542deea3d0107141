package replay

import (
	"time"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
)

// #region types
// Visit is one recorded clinic or home session: the state reported before
// planning, and the self-assessment given afterwards (nil when the patient
// did not complete the session).
type Visit struct {
	VisitID  string
	At       time.Time
	Pain     int
	RedFlags []string
	Report   *assessment.Record
}

// ReplayConfig bundles controller and gate configs for a replay run.
type ReplayConfig struct {
	Controller assessment.Config
	Gate       gate.GateConfig
}

// DefaultReplayConfig returns the production defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		Controller: assessment.DefaultConfig(),
		Gate:       gate.DefaultGateConfig(),
	}
}

// ReplayResult captures the outcome of planning one visit.
type ReplayResult struct {
	VisitID     string
	Status      assessment.Status
	Adjustment  *assessment.Adjustment
	Allowed     difficulty.Set
	Restriction difficulty.Restriction
	Shift       int
	Action      string // "proceed" | "skip"
	Reason      string
	Recorded    bool // the visit's report joined the history
	HistorySize int  // records the controller saw
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalVisits  int
	FreshStarts  int
	Resets       int
	Adjustments  int
	Skips        int
	FinalAllowed difficulty.Set
}

// #endregion types

// #region replay
// Replay walks a patient timeline through controller → resolver → gate,
// one visit at a time, the way the planner sees it live. A reset clears
// the in-memory history; a skipped visit records nothing.
func Replay(base difficulty.Set, visits []Visit, config ReplayConfig) []ReplayResult {
	controller := assessment.NewController(config.Controller)
	gateInst := gate.NewGate(config.Gate)

	var records []assessment.Record
	results := make([]ReplayResult, 0, len(visits))

	for _, v := range visits {
		// 1. Controller on the history so far
		h := assessment.HistoryOf(records...)
		res := controller.Process(h, v.At)
		if res.Status == assessment.StatusReset {
			records = nil
		}

		// 2. Resolver
		resolution := difficulty.Explain(base, v.Pain, res.Adjustment)

		// 3. Gate
		decision := gateInst.Evaluate(gate.Input{RedFlags: v.RedFlags, Pain: v.Pain, Controller: res})

		result := ReplayResult{
			VisitID:     v.VisitID,
			Status:      res.Status,
			Adjustment:  res.Adjustment,
			Allowed:     resolution.Set,
			Restriction: resolution.Restriction,
			Shift:       resolution.Shift,
			Action:      decision.Action,
			Reason:      decision.Reason,
			HistorySize: len(h.Records),
		}

		// 4. Record the session report
		if decision.Action == gate.ActionProceed && v.Report != nil {
			rec := *v.Report
			if rec.RecordedAt.IsZero() {
				rec.RecordedAt = v.At
			}
			records = append(records, rec)
			result.Recorded = true
		}
		results = append(results, result)
	}

	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalVisits: len(results)}
	for _, r := range results {
		switch r.Status {
		case assessment.StatusFreshStart:
			s.FreshStarts++
		case assessment.StatusReset:
			s.Resets++
		}
		if r.Adjustment != nil && r.Adjustment.HasChanges() {
			s.Adjustments++
		}
		if r.Action == gate.ActionSkip {
			s.Skips++
		}
	}
	if len(results) > 0 {
		s.FinalAllowed = results[len(results)-1].Allowed
	}
	return s
}

// #endregion replay
