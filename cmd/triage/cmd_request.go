package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
	"github.com/danielpatrickdp/rehab-triage/internal/triage"
)

var (
	inputPath string

	// diagnose
	diagPatient     string
	diagCategory    string
	diagSymptoms    []string
	diagDescription string
	diagAge         int
	diagSex         string
	diagHeight      float64
	diagWeight      float64

	// plan
	planPatient  string
	planBucket   string
	planScore    int
	planBase     []string
	planPain     int
	planRedFlags []string

	// record
	recPatient    string
	recDifficulty int
	recStimulus   int
	recSweat      int
	recPain       int
	recCompleted  int
	recTotal      int
	recSkipped    []string

	// resolve
	resolveBase  []string
	resolvePain  int
	resolveStep  int
	resolveScore int
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Score symptoms into a fused, sanitized bucket ranking",
	Long: `Scores the symptom list against the category's weight table, fuses the
ranking with retrieved evidence when retrieval is configured, and prints the
full diagnosis as JSON.

Example:
  triage diagnose --category knee --symptoms pain_stairs,swelling --age 64 --sex female`,
	RunE: runDiagnose,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan the allowed difficulty range for a session",
	Long: `Combines the intake capability score (or explicit base levels), current pain,
red flags and the patient's recent session reports into an allowed
difficulty range and a proceed/skip decision.`,
	RunE: runPlan,
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [label]",
	Short: "Map a free-text bucket label to one canonical bucket",
	Args:  cobra.ExactArgs(1),
	RunE:  runSanitize,
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Store a post-session self report",
	RunE:  runRecord,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a difficulty range from base levels, pain and a step",
	Long: `Pure resolver: no history, no gate. Useful for checking the pain and
adjustment rules.

Example:
  triage resolve --base low,medium,high --pain 5 --step -1`,
	RunE: runResolve,
}

func init() {
	for _, c := range []*cobra.Command{diagnoseCmd, planCmd, recordCmd} {
		c.Flags().StringVarP(&inputPath, "input", "i", "", "read the request as JSON from a file (- for stdin); flags are ignored")
	}

	diagnoseCmd.Flags().StringVar(&diagPatient, "patient", "", "patient id recorded with the decision")
	diagnoseCmd.Flags().StringVar(&diagCategory, "category", "", "body region (knee, shoulder, back, neck, ankle)")
	diagnoseCmd.Flags().StringSliceVar(&diagSymptoms, "symptoms", nil, "symptom codes")
	diagnoseCmd.Flags().StringVar(&diagDescription, "description", "", "free-text description used for evidence search")
	diagnoseCmd.Flags().IntVar(&diagAge, "age", 0, "age in years (enables demographics)")
	diagnoseCmd.Flags().StringVar(&diagSex, "sex", scoring.SexPreferNotToSay, "male, female, prefer_not_to_say")
	diagnoseCmd.Flags().Float64Var(&diagHeight, "height-cm", 0, "height in cm")
	diagnoseCmd.Flags().Float64Var(&diagWeight, "weight-kg", 0, "weight in kg")

	planCmd.Flags().StringVar(&planPatient, "patient", "", "patient id; loads stored session history")
	planCmd.Flags().StringVar(&planBucket, "bucket", "", "diagnosed bucket label")
	planCmd.Flags().IntVar(&planScore, "score", 0, "intake capability score 4-16 (0 = unset)")
	planCmd.Flags().StringSliceVar(&planBase, "base", nil, "explicit base levels, e.g. low,medium")
	planCmd.Flags().IntVar(&planPain, "pain", 0, "current pain 0-10")
	planCmd.Flags().StringSliceVar(&planRedFlags, "red-flags", nil, "red flags reported at intake")

	recordCmd.Flags().StringVar(&recPatient, "patient", "", "patient id")
	recordCmd.Flags().IntVar(&recDifficulty, "difficulty", 0, "difficulty felt 1-5")
	recordCmd.Flags().IntVar(&recStimulus, "stimulus", 0, "muscle stimulus 1-5")
	recordCmd.Flags().IntVar(&recSweat, "sweat", 0, "sweat level 1-5")
	recordCmd.Flags().IntVar(&recPain, "pain", -1, "post-session pain 0-10 (-1 = not reported)")
	recordCmd.Flags().IntVar(&recCompleted, "completed-sets", -1, "completed sets (-1 = not reported)")
	recordCmd.Flags().IntVar(&recTotal, "total-sets", -1, "planned sets (-1 = not reported)")
	recordCmd.Flags().StringSliceVar(&recSkipped, "skipped", nil, "skipped exercises")

	resolveCmd.Flags().StringSliceVar(&resolveBase, "base", nil, "base levels (default: full scale)")
	resolveCmd.Flags().IntVar(&resolveScore, "score", 0, "intake capability score 4-16; overrides --base")
	resolveCmd.Flags().IntVar(&resolvePain, "pain", 0, "current pain 0-10")
	resolveCmd.Flags().IntVar(&resolveStep, "step", 0, "difficulty step (-1, 0, +1)")
}

// #region diagnose
func runDiagnose(cmd *cobra.Command, args []string) error {
	in := triage.DiagnoseInput{
		PatientID:   diagPatient,
		Category:    diagCategory,
		Symptoms:    diagSymptoms,
		Description: diagDescription,
	}
	if diagAge > 0 {
		in.Demographics = &scoring.Demographics{Age: diagAge, Sex: diagSex, HeightCm: diagHeight, WeightKg: diagWeight}
	}
	if err := readInput(cmd, &in); err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.Diagnose(cmd.Context(), in)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// #endregion diagnose

// #region plan
func runPlan(cmd *cobra.Command, args []string) error {
	in := triage.PlanInput{
		PatientID:  planPatient,
		Bucket:     planBucket,
		BaseLevels: planBase,
		Pain:       planPain,
		RedFlags:   planRedFlags,
	}
	if planScore != 0 {
		score := planScore
		in.CapabilityScore = &score
	}
	if err := readInput(cmd, &in); err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.Plan(cmd.Context(), in)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// #endregion plan

// #region sanitize
func runSanitize(cmd *cobra.Command, args []string) error {
	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.Sanitize(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// #endregion sanitize

// #region record
// recordRequest is the --input shape for record.
type recordRequest struct {
	PatientID string            `json:"patient_id"`
	Session   assessment.Record `json:"session"`
}

func runRecord(cmd *cobra.Command, args []string) error {
	req := recordRequest{
		PatientID: recPatient,
		Session: assessment.Record{
			RecordedAt:       time.Now().UTC(),
			DifficultyFelt:   recDifficulty,
			MuscleStimulus:   recStimulus,
			SweatLevel:       recSweat,
			Pain:             optional(recPain),
			CompletedSets:    optional(recCompleted),
			TotalSets:        optional(recTotal),
			SkippedExercises: recSkipped,
		},
	}
	if err := readInput(cmd, &req); err != nil {
		return err
	}

	b, err := openBackend()
	if err != nil {
		return err
	}
	defer b.Close()

	out, err := b.RecordSession(cmd.Context(), req.PatientID, req.Session)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

// #endregion record

// #region resolve
func runResolve(cmd *cobra.Command, args []string) error {
	base := difficulty.Prefix(difficulty.High)
	switch {
	case resolveScore != 0:
		level, err := difficulty.LevelFromScore(resolveScore)
		if err != nil {
			return err
		}
		base = difficulty.BaseSet(level)
	case len(resolveBase) > 0:
		set, err := difficulty.ParseSet(resolveBase)
		if err != nil {
			return err
		}
		base = set
	}

	var adj *assessment.Adjustment
	if resolveStep != 0 {
		a := assessment.Adjustment{}.WithDifficulty(resolveStep)
		adj = &a
	}
	return printJSON(cmd.OutOrStdout(), difficulty.Explain(base, resolvePain, adj))
}

// #endregion resolve

// #region io
// readInput decodes --input over v when set.
func readInput(cmd *cobra.Command, v interface{}) error {
	if inputPath == "" {
		return nil
	}
	var r io.Reader
	if inputPath == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

// #endregion io
