package triage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/fusion"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

// #region fakes
type kneeSource struct{}

func (kneeSource) Load(_ context.Context, category bucket.Category) (*weights.Table, error) {
	if category != bucket.Knee {
		return nil, fmt.Errorf("%s: %w", category, weights.ErrNotProvisioned)
	}
	return weights.NewTable(bucket.Knee, nil, map[string][]float64{
		"pain_stairs": {2, 0, 0, 0},
		"running":     {0, 2, 0, 0},
		"swelling":    {0, 0, 1, 1},
		"age_gte_60":  {1, 0, 0, 0},
	})
}

type stubSearcher struct {
	hits []retrieval.Hit
	err  error
}

func (s stubSearcher) Search(context.Context, retrieval.SearchRequest) ([]retrieval.Hit, error) {
	return s.hits, s.err
}

type memorySink struct {
	mu      sync.Mutex
	entries []logging.DecisionEntry
	err     error
}

func (m *memorySink) Record(_ context.Context, e logging.DecisionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return m.err
}

func (m *memorySink) stages() []logging.Stage {
	out := make([]logging.Stage, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Stage
	}
	return out
}

type fakeHistory struct {
	history  assessment.History
	archived string
}

func (f *fakeHistory) History(context.Context, string, int) (assessment.History, error) {
	return f.history, nil
}

func (f *fakeHistory) Archive(_ context.Context, patientID string) (int64, error) {
	f.archived = patientID
	return int64(len(f.history.Records)), nil
}

func newDiagnoser(searcher retrieval.Searcher) *Diagnoser {
	engine := scoring.NewEngine(weights.NewStore(kneeSource{}, nil), nil)
	var ranker *retrieval.Ranker
	if searcher != nil {
		ranker = retrieval.NewRanker(searcher, retrieval.DefaultConfig(), nil)
	}
	return NewDiagnoser(engine, ranker, nil, nil, nil, nil)
}

// #endregion fakes

// #region diagnose-tests
func TestDiagnose_WeightOnly(t *testing.T) {
	d := newDiagnoser(nil)

	diag, err := d.Diagnose(context.Background(), DiagnoseInput{
		Category: "Knee",
		Symptoms: []string{"pain_stairs", "running", "unknown_code"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, diag.RequestID)
	assert.Equal(t, bucket.Knee, diag.Category)
	assert.Equal(t, bucket.RankedList{bucket.OA, bucket.OVR, bucket.TRM, bucket.INF}, diag.WeightRanking)
	assert.Equal(t, diag.WeightRanking, diag.FusedRanking)
	assert.Empty(t, diag.ExternalRanking)
	assert.Nil(t, diag.Discrepancy)
	assert.Equal(t, sanitize.Outcome{Bucket: bucket.OA, Branch: sanitize.BranchSingle, Matched: true}, diag.Bucket)
	assert.Equal(t, []string{"unknown_code"}, diag.UnknownSymptoms)
	assert.Equal(t, 4.0, diag.Total)
	assert.True(t, diag.Validation.Passed, diag.Validation.Reason)
}

func TestDiagnose_FusesEvidence(t *testing.T) {
	d := newDiagnoser(stubSearcher{hits: []retrieval.Hit{
		{ID: "1", Text: "runner's knee", Score: 0.9, Buckets: "OVR"},
		{ID: "2", Text: "twisting injury in runners", Score: 0.8, Buckets: "OVR,TRM"},
	}})
	sink := &memorySink{}
	d.WithSink(sink)

	diag, err := d.Diagnose(context.Background(), DiagnoseInput{
		PatientID: "p1",
		Category:  "knee",
		Symptoms:  []string{"pain_stairs", "running"},
	})
	require.NoError(t, err)

	assert.Equal(t, bucket.RankedList{bucket.OVR, bucket.TRM}, diag.ExternalRanking)
	assert.Equal(t, bucket.RankedList{bucket.OVR, bucket.OA, bucket.TRM, bucket.INF}, diag.FusedRanking)
	assert.Equal(t, bucket.OVR, diag.Bucket.Bucket)
	require.NotNil(t, diag.Discrepancy)
	assert.Equal(t, fusion.SeverityCritical, diag.Discrepancy.Severity)
	assert.Len(t, diag.Contributions, 4)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, logging.StageDiagnose, sink.entries[0].Stage)
	assert.Equal(t, "OVR", sink.entries[0].Decision)
	assert.Equal(t, "p1", sink.entries[0].PatientID)
	assert.Equal(t, diag.RequestID, sink.entries[0].RequestID)
	assert.NotEmpty(t, sink.entries[0].PayloadJSON)
}

func TestDiagnose_SearchFailureDegrades(t *testing.T) {
	d := newDiagnoser(stubSearcher{err: errors.New("connection refused")})

	diag, err := d.Diagnose(context.Background(), DiagnoseInput{Category: "knee", Symptoms: []string{"swelling"}})
	require.NoError(t, err)
	assert.True(t, diag.Evidence.Degraded)
	assert.Equal(t, diag.WeightRanking, diag.FusedRanking)
	assert.Equal(t, bucket.TRM, diag.Bucket.Bucket)
}

func TestDiagnose_Demographics(t *testing.T) {
	d := newDiagnoser(nil)

	diag, err := d.Diagnose(context.Background(), DiagnoseInput{
		Category:     "knee",
		Symptoms:     []string{"pain_stairs"},
		Demographics: &scoring.Demographics{Age: 65, Sex: scoring.SexMale, HeightCm: 175, WeightKg: 70},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, diag.Scores[0].Score)
	assert.Contains(t, diag.Scores[0].ContributingSymptoms, "age_gte_60")

	_, err = d.Diagnose(context.Background(), DiagnoseInput{
		Category:     "knee",
		Demographics: &scoring.Demographics{Age: 5, Sex: scoring.SexMale, HeightCm: 175, WeightKg: 70},
	})
	assert.ErrorIs(t, err, scoring.ErrInvalidDemographics)
}

func TestDiagnose_Errors(t *testing.T) {
	d := newDiagnoser(nil)

	_, err := d.Diagnose(context.Background(), DiagnoseInput{Category: "elbow"})
	assert.ErrorIs(t, err, bucket.ErrUnknownCategory)

	_, err = d.Diagnose(context.Background(), DiagnoseInput{Category: "shoulder", Symptoms: []string{"pain"}})
	assert.ErrorIs(t, err, weights.ErrNotProvisioned)
}

// #endregion diagnose-tests

// #region plan-tests
var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func session(daysAgo int, d, m, s int) assessment.Record {
	return assessment.Record{
		RecordedAt:     now.Add(-time.Duration(daysAgo) * 24 * time.Hour),
		DifficultyFelt: d,
		MuscleStimulus: m,
		SweatLevel:     s,
	}
}

func newPlanner() *Planner {
	return NewPlanner(nil, nil, nil, nil).WithClock(func() time.Time { return now })
}

func TestPlan_FreshStart(t *testing.T) {
	p := newPlanner()

	plan, err := p.Plan(context.Background(), PlanInput{Bucket: "ovr", Pain: 2})
	require.NoError(t, err)

	assert.Equal(t, bucket.OVR, plan.Bucket.Bucket)
	assert.Equal(t, assessment.StatusFreshStart, plan.Controller.Status)
	assert.Nil(t, plan.Controller.Adjustment)
	assert.Equal(t, []difficulty.Difficulty{difficulty.Low, difficulty.Medium, difficulty.High}, plan.Resolution.Set.Levels())
	assert.Equal(t, gate.ActionProceed, plan.Gate.Action)
	assert.InDelta(t, 0.7, plan.Gate.SoftScore, 1e-6)
}

func TestPlan_CycleShiftsCeiling(t *testing.T) {
	p := newPlanner()
	score := 9

	plan, err := p.Plan(context.Background(), PlanInput{
		Bucket:          "OA",
		CapabilityScore: &score,
		Pain:            1,
		Sessions:        []assessment.Record{session(5, 1, 1, 1), session(3, 1, 1, 1), session(1, 1, 1, 1)},
	})
	require.NoError(t, err)

	assert.Equal(t, difficulty.LevelC, plan.Level)
	assert.Equal(t, "{low,medium}", plan.BaseSet.String())
	require.NotNil(t, plan.Controller.Adjustment)
	assert.Equal(t, 1, plan.Controller.Adjustment.Difficulty)
	assert.Equal(t, "{low,medium,high}", plan.Resolution.Set.String())
	assert.Equal(t, 1, plan.Resolution.Shift)
}

func TestPlan_SeverePainAndRedFlags(t *testing.T) {
	p := newPlanner()

	plan, err := p.Plan(context.Background(), PlanInput{
		Bucket:   "TRM|INF",
		Pain:     8,
		RedFlags: []string{"night_pain", " "},
	})
	require.NoError(t, err)

	assert.Equal(t, bucket.TRM, plan.Bucket.Bucket)
	assert.Equal(t, sanitize.BranchMulti, plan.Bucket.Branch)
	assert.Equal(t, "{low}", plan.Resolution.Set.String())
	assert.Equal(t, difficulty.RestrictionSevere, plan.Resolution.Restriction)
	assert.Equal(t, gate.ActionSkip, plan.Gate.Action)
	require.Len(t, plan.Gate.VetoSignals, 1)
	assert.Equal(t, gate.VetoRedFlag, plan.Gate.VetoSignals[0].Type)
}

func TestPlan_InvalidInput(t *testing.T) {
	p := newPlanner()

	bad := 20
	_, err := p.Plan(context.Background(), PlanInput{CapabilityScore: &bad})
	assert.ErrorIs(t, err, difficulty.ErrInvalidScore)

	_, err = p.Plan(context.Background(), PlanInput{BaseLevels: []string{"high"}})
	assert.ErrorIs(t, err, difficulty.ErrNotPrefix)

	_, err = p.Plan(context.Background(), PlanInput{Sessions: []assessment.Record{session(1, 9, 1, 1)}})
	assert.ErrorIs(t, err, assessment.ErrInvalidRecord)
}

func TestPlan_StoredHistoryResetArchives(t *testing.T) {
	store := &fakeHistory{history: assessment.HistoryOf(session(12, 3, 3, 3), session(10, 3, 3, 3))}
	sink := &memorySink{}
	p := newPlanner().WithHistory(store).WithSink(sink)

	plan, err := p.Plan(context.Background(), PlanInput{PatientID: "p7", Bucket: "OA", Pain: 0})
	require.NoError(t, err)

	assert.Equal(t, assessment.StatusReset, plan.Controller.Status)
	assert.Equal(t, "p7", store.archived)
	assert.Equal(t, int64(2), plan.Archived)
	assert.Equal(t, []logging.Stage{
		logging.StageSanitize, logging.StageController, logging.StageResolver, logging.StageGate,
	}, sink.stages())
	for _, e := range sink.entries {
		assert.Equal(t, plan.RequestID, e.RequestID)
		assert.Equal(t, "p7", e.PatientID)
	}
}

func TestPlan_InlineSessionsSkipStore(t *testing.T) {
	store := &fakeHistory{history: assessment.HistoryOf(session(12, 3, 3, 3))}
	p := newPlanner().WithHistory(store)

	plan, err := p.Plan(context.Background(), PlanInput{
		PatientID: "p7",
		Bucket:    "OA",
		Sessions:  []assessment.Record{session(1, 3, 3, 3), session(0, 3, 3, 3)},
	})
	require.NoError(t, err)
	assert.Equal(t, assessment.StatusNormal, plan.Controller.Status)
	assert.True(t, plan.PromptAssessed)
	assert.Empty(t, store.archived)
}

func TestPlan_SinkFailureIsNotFatal(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	p := newPlanner().WithSink(sink)

	_, err := p.Plan(context.Background(), PlanInput{Bucket: "OA"})
	require.NoError(t, err)
	assert.Len(t, sink.entries, 4)
}

// #endregion plan-tests
