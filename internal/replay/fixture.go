package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	Start           time.Time               `json:"start"`
	BaseLevels      []string                `json:"base_levels"`
	Config          FixtureConfig           `json:"config"`
	Visits          []FixtureVisit          `json:"visits"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors ReplayConfig with JSON tags. Zero values take the
// defaults.
type FixtureConfig struct {
	StaleAfterDays int   `json:"stale_after_days"`
	CycleSize      int   `json:"cycle_size"`
	SkipOnRedFlag  *bool `json:"skip_on_red_flag,omitempty"`
}

// FixtureVisit is one visit, Day days after Start.
type FixtureVisit struct {
	VisitID  string         `json:"visit_id"`
	Day      float64        `json:"day"`
	Pain     int            `json:"pain"`
	RedFlags []string       `json:"red_flags,omitempty"`
	Report   *FixtureReport `json:"report,omitempty"`
}

// FixtureReport mirrors assessment.Record without identity fields.
type FixtureReport struct {
	DifficultyFelt int  `json:"difficulty_felt"`
	MuscleStimulus int  `json:"muscle_stimulus"`
	SweatLevel     int  `json:"sweat_level"`
	Pain           *int `json:"pain,omitempty"`
	CompletedSets  *int `json:"completed_sets,omitempty"`
	TotalSets      *int `json:"total_sets,omitempty"`
}

// FixtureExpectedResult captures the expected outcome per visit.
type FixtureExpectedResult struct {
	VisitID string   `json:"visit_id"`
	Status  string   `json:"status"`
	Allowed []string `json:"allowed"`
	Action  string   `json:"action"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the fixture as indented JSON.
func (f *Fixture) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture %s: %w", path, err)
	}
	return nil
}

// BaseSet parses BaseLevels; empty means the full scale.
func (f *Fixture) BaseSet() (difficulty.Set, error) {
	if len(f.BaseLevels) == 0 {
		return difficulty.Prefix(difficulty.High), nil
	}
	return difficulty.ParseSet(f.BaseLevels)
}

// ToVisits converts fixture visits to domain visits, validating reports.
func (f *Fixture) ToVisits() ([]Visit, error) {
	visits := make([]Visit, len(f.Visits))
	for i, fv := range f.Visits {
		at := f.Start.Add(time.Duration(fv.Day * float64(24*time.Hour)))
		v := Visit{VisitID: fv.VisitID, At: at, Pain: fv.Pain, RedFlags: fv.RedFlags}
		if fv.Report != nil {
			rec := assessment.Record{
				ID:             fv.VisitID,
				RecordedAt:     at,
				DifficultyFelt: fv.Report.DifficultyFelt,
				MuscleStimulus: fv.Report.MuscleStimulus,
				SweatLevel:     fv.Report.SweatLevel,
				Pain:           fv.Report.Pain,
				CompletedSets:  fv.Report.CompletedSets,
				TotalSets:      fv.Report.TotalSets,
			}
			if err := rec.Validate(); err != nil {
				return nil, fmt.Errorf("visit %s: %w", fv.VisitID, err)
			}
			v.Report = &rec
		}
		visits[i] = v
	}
	return visits, nil
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc FixtureConfig) ToReplayConfig() ReplayConfig {
	config := DefaultReplayConfig()
	if fc.StaleAfterDays > 0 {
		config.Controller.StaleAfter = time.Duration(fc.StaleAfterDays) * 24 * time.Hour
	}
	if fc.CycleSize > 0 {
		config.Controller.CycleSize = fc.CycleSize
	}
	if fc.SkipOnRedFlag != nil {
		config.Gate = gate.GateConfig{SkipOnRedFlag: *fc.SkipOnRedFlag}
	}
	return config
}

// Run replays the fixture.
func (f *Fixture) Run() ([]ReplayResult, error) {
	base, err := f.BaseSet()
	if err != nil {
		return nil, err
	}
	visits, err := f.ToVisits()
	if err != nil {
		return nil, err
	}
	return Replay(base, visits, f.Config.ToReplayConfig()), nil
}

// #endregion fixture-loader

// #region fixture-check

// Check compares results against the expected results and describes every
// mismatch. An empty slice means the fixture reproduced.
func (f *Fixture) Check(results []ReplayResult) []string {
	var mismatches []string
	if len(results) != len(f.ExpectedResults) {
		mismatches = append(mismatches, fmt.Sprintf("expected %d results, got %d", len(f.ExpectedResults), len(results)))
	}
	for i, want := range f.ExpectedResults {
		if i >= len(results) {
			break
		}
		got := results[i]
		if got.VisitID != want.VisitID {
			mismatches = append(mismatches, fmt.Sprintf("visit %d: expected visit_id=%s, got %s", i, want.VisitID, got.VisitID))
		}
		if string(got.Status) != want.Status {
			mismatches = append(mismatches, fmt.Sprintf("visit %s: expected status=%s, got %s", want.VisitID, want.Status, got.Status))
		}
		if allowed := strings.Join(got.Allowed.Strings(), ","); allowed != strings.Join(want.Allowed, ",") {
			mismatches = append(mismatches, fmt.Sprintf("visit %s: expected allowed=%v, got %s", want.VisitID, want.Allowed, got.Allowed))
		}
		if got.Action != want.Action {
			mismatches = append(mismatches, fmt.Sprintf("visit %s: expected action=%s, got %s (reason: %s)", want.VisitID, want.Action, got.Action, got.Reason))
		}
	}
	return mismatches
}

// #endregion fixture-check

// #region fixture-export

// FixtureFromRecords builds a fixture from a stored session timeline. Each
// record becomes a visit whose pain is the reported pain; the expected
// results are what the current engine produces, so the fixture pins today's
// behaviour as a regression baseline.
func FixtureFromRecords(description string, records []assessment.Record, base difficulty.Set, config FixtureConfig) (*Fixture, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to export")
	}
	start := records[0].RecordedAt.UTC()
	f := &Fixture{
		Description: description,
		Start:       start,
		BaseLevels:  base.Strings(),
		Config:      config,
	}
	for i, r := range records {
		id := r.ID
		if id == "" {
			id = fmt.Sprintf("visit-%d", i+1)
		}
		pain := 0
		if r.Pain != nil {
			pain = *r.Pain
		}
		f.Visits = append(f.Visits, FixtureVisit{
			VisitID: id,
			Day:     r.RecordedAt.UTC().Sub(start).Hours() / 24,
			Pain:    pain,
			Report: &FixtureReport{
				DifficultyFelt: r.DifficultyFelt,
				MuscleStimulus: r.MuscleStimulus,
				SweatLevel:     r.SweatLevel,
				Pain:           r.Pain,
				CompletedSets:  r.CompletedSets,
				TotalSets:      r.TotalSets,
			},
		})
	}

	results, err := f.Run()
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{
			VisitID: r.VisitID,
			Status:  string(r.Status),
			Allowed: r.Allowed.Strings(),
			Action:  r.Action,
		})
	}
	return f, nil
}

// #endregion fixture-export
