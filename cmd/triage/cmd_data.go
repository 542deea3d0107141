package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/config"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/history"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/replay"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

var (
	inspectLast    int
	inspectStage   string
	inspectPatient string
	jsonOut        bool

	exportPatient     string
	exportOut         string
	exportBase        []string
	exportDescription string

	importFrom       string
	importTo         string
	importCategories []string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect stored decisions, patients and session timelines",
}

var inspectDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "List the most recent provenance entries",
	RunE:  runInspectDecisions,
}

var inspectPatientsCmd = &cobra.Command{
	Use:   "patients",
	Short: "List patients with active session history",
	RunE:  runInspectPatients,
}

var inspectTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show every stored session of a patient, archived ones included",
	RunE:  runInspectTimeline,
}

var exportFixtureCmd = &cobra.Command{
	Use:   "export-fixture",
	Short: "Export a patient's session timeline as a replay fixture",
	Long: `Builds a replay fixture from every stored session of a patient. The expected
results are what the engine produces today, so the fixture pins current
behaviour as a regression baseline for "replay --fixture".`,
	RunE: runExportFixture,
}

var importWeightsCmd = &cobra.Command{
	Use:   "import-weights",
	Short: "Copy weight tables from the file tree into SQLite or Redis",
	RunE:  runImportWeights,
}

func init() {
	inspectCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")
	inspectDecisionsCmd.Flags().IntVar(&inspectLast, "last", 20, "show N most recent entries")
	inspectDecisionsCmd.Flags().StringVar(&inspectStage, "stage", "", "only show one stage (sanitize, diagnose, controller, resolver, gate)")
	inspectTimelineCmd.Flags().StringVar(&inspectPatient, "patient", "", "patient id")
	_ = inspectTimelineCmd.MarkFlagRequired("patient")
	inspectCmd.AddCommand(inspectDecisionsCmd, inspectPatientsCmd, inspectTimelineCmd)

	exportFixtureCmd.Flags().StringVar(&exportPatient, "patient", "", "patient id")
	exportFixtureCmd.Flags().StringVar(&exportOut, "out", "", "output fixture JSON path")
	exportFixtureCmd.Flags().StringSliceVar(&exportBase, "base", nil, "base levels (default: full scale)")
	exportFixtureCmd.Flags().StringVar(&exportDescription, "description", "", "fixture description")
	_ = exportFixtureCmd.MarkFlagRequired("patient")
	_ = exportFixtureCmd.MarkFlagRequired("out")

	importWeightsCmd.Flags().StringVar(&importFrom, "from", "", "weights directory (default: weights.dir)")
	importWeightsCmd.Flags().StringVar(&importTo, "to", config.SourceSQL, "destination: sql or redis")
	importWeightsCmd.Flags().StringSliceVar(&importCategories, "categories", nil, "categories to copy (default: all)")
}

// #region inspect
func runInspectDecisions(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	// Over-fetch when filtering so --last still means N shown rows.
	limit := inspectLast
	if inspectStage != "" {
		limit = inspectLast * 5
	}
	entries, err := logging.NewProvenance(store.DB()).Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	var shown []logging.DecisionEntry
	for _, e := range entries {
		if inspectStage != "" && string(e.Stage) != inspectStage {
			continue
		}
		shown = append(shown, e)
		if len(shown) == inspectLast {
			break
		}
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), shown)
	}
	if len(shown) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "no decisions found")
		return nil
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-20s  %-10s  %-12s  %-8s  %-14s  %s\n", "created_at", "stage", "patient", "request", "decision", "reason")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, e := range shown {
		fmt.Fprintf(w, "%-20s  %-10s  %-12s  %-8s  %-14s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Stage, truncate(e.PatientID, 12),
			truncate(e.RequestID, 8), truncate(e.Decision, 14), e.Reason)
	}
	return nil
}

func runInspectPatients(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	patients, err := store.Patients(cmd.Context())
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), patients)
	}
	for _, p := range patients {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

func runInspectTimeline(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Timeline(cmd.Context(), inspectPatient)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(cmd.OutOrStdout(), records)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-20s  %4s  %4s  %4s  %4s  %-9s\n", "recorded_at", "diff", "stim", "sweat", "pain", "sets")
	fmt.Fprintln(w, strings.Repeat("-", 56))
	for _, r := range records {
		pain, sets := "-", "-"
		if r.Pain != nil {
			pain = fmt.Sprintf("%d", *r.Pain)
		}
		if r.CompletedSets != nil && r.TotalSets != nil {
			sets = fmt.Sprintf("%d/%d", *r.CompletedSets, *r.TotalSets)
		}
		fmt.Fprintf(w, "%-20s  %4d  %4d  %5d  %4s  %-9s\n",
			r.RecordedAt.Format("2006-01-02 15:04:05"), r.DifficultyFelt, r.MuscleStimulus, r.SweatLevel, pain, sets)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// #endregion inspect

// #region export-fixture
func runExportFixture(cmd *cobra.Command, args []string) error {
	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Timeline(cmd.Context(), exportPatient)
	if err != nil {
		return err
	}

	base := difficulty.Prefix(difficulty.High)
	if len(exportBase) > 0 {
		if base, err = difficulty.ParseSet(exportBase); err != nil {
			return err
		}
	}
	description := exportDescription
	if description == "" {
		description = fmt.Sprintf("exported timeline of patient %s (%d sessions)", exportPatient, len(records))
	}

	fc := replay.FixtureConfig{CycleSize: cfg.Controller.CycleSize}
	if days := int(cfg.StaleAfter().Hours() / 24); days > 0 {
		fc.StaleAfterDays = days
	}
	skip := cfg.Gate.SkipOnRedFlag
	fc.SkipOnRedFlag = &skip

	f, err := replay.FixtureFromRecords(description, records, base, fc)
	if err != nil {
		return err
	}
	if err := f.Save(exportOut); err != nil {
		return err
	}
	logger.Info("fixture exported", "patient", exportPatient, "visits", len(f.Visits), "out", exportOut)
	return nil
}

// #endregion export-fixture

// #region import-weights
func runImportWeights(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	from := importFrom
	if from == "" {
		from = cfg.WeightsDir()
	}
	categories, err := parseCategories(importCategories)
	if err != nil {
		return err
	}

	put, closeFn, err := weightSink(importTo)
	if err != nil {
		return err
	}
	defer closeFn()

	src := weights.NewFileSource(from)
	for _, cat := range categories {
		t, err := src.Load(ctx, cat)
		if errors.Is(err, weights.ErrNotProvisioned) && len(importCategories) == 0 {
			logger.Warn("no weights on disk, skipping", "category", cat, "dir", from)
			continue
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", cat, err)
		}
		if err := put(ctx, t); err != nil {
			return fmt.Errorf("store %s: %w", cat, err)
		}
		logger.Info("weights imported", "category", cat, "symptoms", t.Len(), "to", importTo)
	}
	return nil
}

// weightSink opens the import destination.
func weightSink(kind string) (func(context.Context, *weights.Table) error, func(), error) {
	switch kind {
	case config.SourceSQL:
		store, err := history.Open(cfg.DBPath())
		if err != nil {
			return nil, nil, err
		}
		return weights.NewSQLSource(store.DB()).Put, func() { store.Close() }, nil
	case config.SourceRedis:
		if cfg.Weights.RedisAddr == "" {
			return nil, nil, fmt.Errorf("weights.redis_addr is not set")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Weights.RedisAddr})
		put := func(ctx context.Context, t *weights.Table) error {
			return weights.PutRedis(ctx, client, t)
		}
		return put, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown destination %q (want sql or redis)", kind)
	}
}

func parseCategories(names []string) ([]bucket.Category, error) {
	if len(names) == 0 {
		return append([]bucket.Category(nil), bucket.Categories...), nil
	}
	out := make([]bucket.Category, 0, len(names))
	for _, n := range names {
		cat, err := bucket.ParseCategory(n)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}

// #endregion import-weights
