package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intp(v int) *int { return &v }

func rec(at time.Time, d, m, s int) assessment.Record {
	return assessment.Record{RecordedAt: at, DifficultyFelt: d, MuscleStimulus: m, SweatLevel: s}
}

func TestAppendAndHistory(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	r := rec(base.Add(48*time.Hour), 3, 3, 3)
	r.Pain = intp(2)
	r.CompletedSets = intp(8)
	r.TotalSets = intp(10)
	r.SkippedExercises = []string{"lunge"}

	if _, err := s.Append(ctx, "p1", rec(base, 1, 2, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	stored, err := s.Append(ctx, "p1", r)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected generated ID")
	}
	if _, err := s.Append(ctx, "p2", rec(base, 5, 5, 5)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	h, err := s.History(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.Records))
	}
	if h.Records[0].RPETotal() != 4 || h.Records[1].RPETotal() != 9 {
		t.Fatalf("expected chronological order, got RPE %d then %d", h.Records[0].RPETotal(), h.Records[1].RPETotal())
	}
	last := h.Records[1]
	if last.Pain == nil || *last.Pain != 2 {
		t.Fatalf("expected pain 2, got %v", last.Pain)
	}
	if rate, ok := last.CompletionRate(); !ok || rate != 0.8 {
		t.Fatalf("expected completion 0.8, got %v %v", rate, ok)
	}
	if len(last.SkippedExercises) != 1 || last.SkippedExercises[0] != "lunge" {
		t.Fatalf("unexpected skipped: %v", last.SkippedExercises)
	}
	if h.Records[0].Pain != nil {
		t.Fatalf("expected nil pain on first record")
	}
	if h.LastAt == nil || !h.LastAt.Equal(base.Add(48*time.Hour)) {
		t.Fatalf("unexpected LastAt: %v", h.LastAt)
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, "p1", rec(base.Add(time.Duration(i)*time.Hour), 1+i%5, 1, 1)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	h, err := s.History(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(h.Records))
	}
	if h.Records[0].DifficultyFelt != 3 || h.Records[2].DifficultyFelt != 5 {
		t.Fatalf("expected the three newest in order, got %d..%d", h.Records[0].DifficultyFelt, h.Records[2].DifficultyFelt)
	}
}

func TestHistorySameSecondStaysChronological(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{0, 250 * time.Millisecond, 500 * time.Millisecond} {
		if _, err := s.Append(ctx, "p1", rec(at.Add(offset), i+1, 1, 1)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	h, err := s.History(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(h.Records))
	}
	for i, r := range h.Records {
		if r.DifficultyFelt != i+1 {
			t.Fatalf("record %d: expected difficulty %d, got %d", i, i+1, r.DifficultyFelt)
		}
	}
	if !h.Records[0].RecordedAt.Equal(at) || !h.Records[2].RecordedAt.Equal(at.Add(500*time.Millisecond)) {
		t.Fatalf("recorded_at did not round-trip: %v, %v", h.Records[0].RecordedAt, h.Records[2].RecordedAt)
	}

	newest, err := s.History(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("History limit 1: %v", err)
	}
	if len(newest.Records) != 1 || newest.Records[0].DifficultyFelt != 3 {
		t.Fatalf("expected the half-second record as newest, got %+v", newest.Records)
	}

	timeline, err := s.Timeline(ctx, "p1")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if timeline[0].DifficultyFelt != 1 || timeline[2].DifficultyFelt != 3 {
		t.Fatalf("timeline out of order: %d..%d", timeline[0].DifficultyFelt, timeline[2].DifficultyFelt)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "p1", rec(time.Now(), 0, 3, 3)); !errors.Is(err, assessment.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if _, err := s.Append(ctx, "", rec(time.Now(), 3, 3, 3)); !errors.Is(err, ErrEmptyPatient) {
		t.Fatalf("expected ErrEmptyPatient, got %v", err)
	}
	if _, err := s.History(ctx, "", 0); !errors.Is(err, ErrEmptyPatient) {
		t.Fatalf("expected ErrEmptyPatient, got %v", err)
	}
}

func TestArchive(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		if _, err := s.Append(ctx, "p1", rec(now, 3, 3, 3)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := s.Append(ctx, "p2", rec(now, 3, 3, 3)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := s.Archive(ctx, "p1")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 archived, got %d", n)
	}
	h, _ := s.History(ctx, "p1", 0)
	if len(h.Records) != 0 || h.LastAt != nil {
		t.Fatalf("expected empty history after archive, got %+v", h)
	}

	patients, err := s.Patients(ctx)
	if err != nil {
		t.Fatalf("Patients: %v", err)
	}
	if len(patients) != 1 || patients[0] != "p2" {
		t.Fatalf("unexpected patients: %v", patients)
	}
}

func TestTimelineIncludesArchived(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "p1", rec(base.Add(24*time.Hour), 2, 2, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Append(ctx, "p1", rec(base, 1, 1, 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := s.Archive(ctx, "p1"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := s.Append(ctx, "p1", rec(base.Add(20*24*time.Hour), 3, 3, 3)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	timeline, err := s.Timeline(ctx, "p1")
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("expected 3 records, got %d", len(timeline))
	}
	for i, want := range []int{3, 6, 9} {
		if got := timeline[i].RPETotal(); got != want {
			t.Errorf("record %d: expected RPE %d, got %d", i, want, got)
		}
	}

	if _, err := s.Timeline(ctx, ""); !errors.Is(err, ErrEmptyPatient) {
		t.Fatalf("expected ErrEmptyPatient, got %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "triage.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Append(context.Background(), "p1", rec(time.Now(), 2, 2, 2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	h, err := s.History(context.Background(), "p1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h.Records) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(h.Records))
	}
}

func TestSchemaServesOtherStores(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	tbl, err := weights.NewTable(bucket.Knee, nil, map[string][]float64{"pain_stairs": {1, 0.5, 0, 0}})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	src := weights.NewSQLSource(s.DB())
	if err := src.Put(ctx, tbl); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := src.Load(ctx, bucket.Knee)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("expected 1 symptom, got %d", got.Len())
	}

	err = logging.LogDecision(ctx, s.DB(), logging.DecisionEntry{
		Stage: logging.StageSanitize, Decision: "OA", Reason: "single",
	})
	if err != nil {
		t.Fatalf("LogDecision: %v", err)
	}
	entries, err := logging.NewProvenance(s.DB()).Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 provenance entry, got %d", len(entries))
	}
}
