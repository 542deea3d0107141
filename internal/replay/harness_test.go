package replay

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// helper: a valid report with the given sub-scores.
func report(d, m, s int) *assessment.Record {
	return &assessment.Record{DifficultyFelt: d, MuscleStimulus: m, SweatLevel: s}
}

// helper: a visit n days after day0.
func visitAt(id string, days int, pain int, rep *assessment.Record) Visit {
	return Visit{VisitID: id, At: day0.Add(time.Duration(days) * 24 * time.Hour), Pain: pain, Report: rep}
}

func full() difficulty.Set { return difficulty.Prefix(difficulty.High) }

func TestReplay_FirstVisitIsFreshStart(t *testing.T) {
	results := Replay(full(), []Visit{visitAt("a", 0, 1, report(2, 2, 2))}, DefaultReplayConfig())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Status != assessment.StatusFreshStart {
		t.Errorf("expected fresh_start, got %s", r.Status)
	}
	if r.Action != gate.ActionProceed || !r.Recorded {
		t.Errorf("expected proceed and recorded, got %s recorded=%v", r.Action, r.Recorded)
	}
	if r.HistorySize != 0 {
		t.Errorf("expected empty history, got %d", r.HistorySize)
	}
}

func TestReplay_ResetClearsHistory(t *testing.T) {
	visits := []Visit{
		visitAt("a", 0, 1, report(2, 2, 2)),
		visitAt("b", 1, 1, report(2, 2, 2)),
		visitAt("c", 20, 1, report(2, 2, 2)),
		visitAt("d", 21, 1, nil),
	}
	results := Replay(full(), visits, DefaultReplayConfig())

	if results[2].Status != assessment.StatusReset {
		t.Fatalf("expected reset after the gap, got %s", results[2].Status)
	}
	if results[2].HistorySize != 2 {
		t.Errorf("expected reset visit to see 2 records, got %d", results[2].HistorySize)
	}
	// Only the post-reset report survives.
	if results[3].HistorySize != 1 {
		t.Errorf("expected 1 record after reset, got %d", results[3].HistorySize)
	}
	if results[3].Recorded {
		t.Error("expected visit without a report to record nothing")
	}
}

func TestReplay_SkipDoesNotRecord(t *testing.T) {
	skip := visitAt("b", 1, 3, report(5, 5, 5))
	skip.RedFlags = []string{"night_pain"}
	visits := []Visit{
		visitAt("a", 0, 1, report(2, 2, 2)),
		skip,
		visitAt("c", 2, 1, nil),
	}
	results := Replay(full(), visits, DefaultReplayConfig())

	if results[1].Action != gate.ActionSkip || results[1].Recorded {
		t.Fatalf("expected skip without recording, got %s recorded=%v", results[1].Action, results[1].Recorded)
	}
	if results[2].HistorySize != 1 {
		t.Errorf("expected skipped report to stay out of history, got %d records", results[2].HistorySize)
	}
}

func TestReplay_RedFlagsIgnoredWhenGateAllows(t *testing.T) {
	v := visitAt("a", 0, 2, report(2, 2, 2))
	v.RedFlags = []string{"night_pain"}
	config := DefaultReplayConfig()
	config.Gate = gate.GateConfig{SkipOnRedFlag: false}

	results := Replay(full(), []Visit{v}, config)
	if results[0].Action != gate.ActionProceed {
		t.Fatalf("expected proceed, got %s (%s)", results[0].Action, results[0].Reason)
	}
}

func TestReplay_CycleAdjustsRange(t *testing.T) {
	// Three hard sessions (RPE 15) step the ceiling down.
	visits := []Visit{
		visitAt("a", 0, 0, report(5, 5, 5)),
		visitAt("b", 1, 0, report(5, 5, 5)),
		visitAt("c", 2, 0, report(5, 5, 5)),
		visitAt("d", 3, 0, nil),
	}
	results := Replay(full(), visits, DefaultReplayConfig())

	last := results[3]
	if last.Adjustment == nil || last.Adjustment.Difficulty != -1 {
		t.Fatalf("expected difficulty -1, got %+v", last.Adjustment)
	}
	if got := last.Allowed.String(); got != "{low,medium}" {
		t.Errorf("expected {low,medium}, got %s", got)
	}
	if last.Shift != -1 {
		t.Errorf("expected shift -1, got %d", last.Shift)
	}
}

func TestSummarize(t *testing.T) {
	results := []ReplayResult{
		{Status: assessment.StatusFreshStart, Action: gate.ActionProceed},
		{Status: assessment.StatusNormal, Action: gate.ActionSkip},
		{Status: assessment.StatusNormal, Action: gate.ActionProceed, Adjustment: &assessment.Adjustment{}},
		{Status: assessment.StatusNormal, Action: gate.ActionProceed, Adjustment: &assessment.Adjustment{Difficulty: 1}},
		{Status: assessment.StatusReset, Action: gate.ActionProceed, Allowed: difficulty.Prefix(difficulty.Low)},
	}
	s := Summarize(results)
	if s.TotalVisits != 5 || s.FreshStarts != 1 || s.Resets != 1 || s.Skips != 1 || s.Adjustments != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if s.FinalAllowed.String() != "{low}" {
		t.Errorf("expected final {low}, got %s", s.FinalAllowed)
	}
	if empty := Summarize(nil); empty.TotalVisits != 0 || len(empty.FinalAllowed.Strings()) != 0 {
		t.Errorf("expected zero summary, got %+v", empty)
	}
}
