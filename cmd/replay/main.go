package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/history"
	"github.com/danielpatrickdp/rehab-triage/internal/replay"
)

// exitError carries a process exit code out of RunE.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit %d", int(e)) }

var (
	dbPath      string
	patientID   string
	fixturePath string
	baseLevels  []string
	staleDays   int
	cycleSize   int
)

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay patient timelines through controller, resolver and gate",
	Long: `Fixture mode replays a JSON fixture and compares every visit against its
expected status, allowed range and action; any divergence exits 1.

DB mode replays a stored patient timeline (archived sessions included) with
the current engine and prints what each visit would be planned as.

  replay --fixture path/to/fixture.json
  replay --db data/triage.db --patient p-123`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (dbPath == "") == (fixturePath == "") {
			return fmt.Errorf("exactly one of --db or --fixture is required")
		}
		if fixturePath != "" {
			return runFixtureMode(cmd.OutOrStdout(), fixturePath)
		}
		if patientID == "" {
			return fmt.Errorf("--patient is required with --db")
		}
		return runDBMode(cmd, dbPath, patientID)
	},
}

func init() {
	rootCmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON (fixture mode)")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "path to the triage database (DB mode)")
	rootCmd.Flags().StringVar(&patientID, "patient", "", "patient id (DB mode)")
	rootCmd.Flags().StringSliceVar(&baseLevels, "base", nil, "base levels for DB mode (default: full scale)")
	rootCmd.Flags().IntVar(&staleDays, "stale-days", 0, "history reset threshold in days (0 = default)")
	rootCmd.Flags().IntVar(&cycleSize, "cycle-size", 0, "sessions per adjustment cycle (0 = default)")
}

// #region main

func main() {
	err := rootCmd.Execute()
	if code, ok := err.(exitError); ok {
		os.Exit(int(code))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
}

// #endregion main

// #region db-mode

func runDBMode(cmd *cobra.Command, dbPath, patientID string) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	records, err := store.Timeline(cmd.Context(), patientID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no sessions stored for patient %s", patientID)
	}

	base := difficulty.Prefix(difficulty.High)
	if len(baseLevels) > 0 {
		if base, err = difficulty.ParseSet(baseLevels); err != nil {
			return err
		}
	}

	f, err := replay.FixtureFromRecords("db replay", records, base,
		replay.FixtureConfig{StaleAfterDays: staleDays, CycleSize: cycleSize})
	if err != nil {
		return err
	}
	results, err := f.Run()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-38s| %-12s| %-19s| %-8s| %s\n", "Visit", "Status", "Allowed", "Action", "RPE window")
	fmt.Fprintf(w, "%s+%s+%s+%s+%s\n",
		strings.Repeat("-", 38), strings.Repeat("-", 13), strings.Repeat("-", 20), strings.Repeat("-", 9), strings.Repeat("-", 12))
	for _, r := range results {
		shift := "-"
		if r.Adjustment != nil {
			shift = fmt.Sprintf("step %+d", r.Adjustment.Difficulty)
		}
		fmt.Fprintf(w, "%-38s| %-12s| %-19s| %-8s| %s\n", r.VisitID, r.Status, r.Allowed, r.Action, shift)
	}
	printSummary(w, replay.Summarize(results))
	return nil
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(w io.Writer, path string) error {
	f, err := replay.LoadFixture(path)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	if staleDays > 0 {
		f.Config.StaleAfterDays = staleDays
	}
	if cycleSize > 0 {
		f.Config.CycleSize = cycleSize
	}
	results, err := f.Run()
	if err != nil {
		return err
	}
	return printComparison(w, f, results)
}

// printComparison outputs a comparison table and returns exitError(1) on
// any divergence.
func printComparison(w io.Writer, f *replay.Fixture, results []replay.ReplayResult) error {
	fmt.Fprintf(w, "%-8s| %-32s| %-32s| %s\n", "Visit", "Expected", "Replayed", "Match")
	fmt.Fprintf(w, "%s+%s+%s+%s\n",
		strings.Repeat("-", 8), strings.Repeat("-", 33), strings.Repeat("-", 33), "------")

	matches := 0
	total := len(results)
	if len(f.ExpectedResults) < total {
		total = len(f.ExpectedResults)
	}
	for i := 0; i < total; i++ {
		exp := f.ExpectedResults[i]
		got := results[i]
		expected := fmt.Sprintf("%s {%s} %s", exp.Status, strings.Join(exp.Allowed, ","), exp.Action)
		replayed := fmt.Sprintf("%s %s %s", got.Status, got.Allowed, got.Action)
		match := "DIFF"
		if expected == replayed {
			match = "OK"
			matches++
		}
		fmt.Fprintf(w, "%-8s| %-32s| %-32s| %s\n", exp.VisitID, expected, replayed, match)
	}

	mismatches := f.Check(results)
	fmt.Fprintf(w, "\nSummary: %d total, %d match, %d diverge\n", total, matches, total-matches)
	for _, m := range mismatches {
		fmt.Fprintf(w, "  %s\n", m)
	}
	printSummary(w, replay.Summarize(results))

	if len(mismatches) > 0 {
		return exitError(1)
	}
	return nil
}

func printSummary(w io.Writer, s replay.ReplaySummary) {
	fmt.Fprintf(w, "Visits: %d | fresh starts: %d | resets: %d | adjustments: %d | skips: %d | final range: %s\n",
		s.TotalVisits, s.FreshStarts, s.Resets, s.Adjustments, s.Skips, s.FinalAllowed)
}

// #endregion fixture-mode
