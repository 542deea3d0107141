package triage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/eval"
	"github.com/danielpatrickdp/rehab-triage/internal/fusion"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
)

// #region diagnoser
// Diagnoser runs stage (a): weight scoring and evidence ranking side by
// side, fused into one consensus bucket.
type Diagnoser struct {
	scorer    *scoring.Engine
	ranker    *retrieval.Ranker
	merger    *fusion.Merger
	sanitizer *sanitize.Sanitizer
	harness   *eval.EvalHarness
	sink      DecisionSink
	log       *logging.Logger
}

// NewDiagnoser wires a diagnoser. ranker may be nil (weight ranking only);
// nil merger, sanitizer and harness fall back to their defaults.
func NewDiagnoser(scorer *scoring.Engine, ranker *retrieval.Ranker, merger *fusion.Merger,
	sanitizer *sanitize.Sanitizer, harness *eval.EvalHarness, log *logging.Logger) *Diagnoser {
	log = logging.OrNop(log)
	if merger == nil {
		merger = &fusion.Merger{Ratio: fusion.DefaultRatio}
	}
	if sanitizer == nil {
		sanitizer = sanitize.New(sanitize.DefaultConfig(), log)
	}
	if harness == nil {
		harness = eval.NewEvalHarness(eval.DefaultEvalConfig())
	}
	return &Diagnoser{
		scorer:    scorer,
		ranker:    ranker,
		merger:    merger,
		sanitizer: sanitizer,
		harness:   harness,
		log:       log,
	}
}

// WithSink records the final bucket decision of every request.
func (d *Diagnoser) WithSink(sink DecisionSink) *Diagnoser {
	d.sink = sink
	return d
}

// #endregion diagnoser

// #region diagnose
// Diagnose scores the symptoms, fuses the weight ranking with the evidence
// ranking and sanitizes the consensus top bucket. Only invalid input and
// unprovisioned weight tables are errors; retrieval problems degrade.
func (d *Diagnoser) Diagnose(ctx context.Context, in DiagnoseInput) (Diagnosis, error) {
	// 1. Validate input
	category, err := bucket.ParseCategory(in.Category)
	if err != nil {
		return Diagnosis{}, err
	}
	symptoms := append([]string(nil), in.Symptoms...)
	if in.Demographics != nil {
		if err := in.Demographics.Validate(); err != nil {
			return Diagnosis{}, err
		}
		symptoms = append(symptoms, in.Demographics.SymptomCodes()...)
	}

	requestID := uuid.New().String()
	log := d.log.With("request_id", requestID, "category", category)

	// 2. Scoring and evidence ranking in parallel
	var scored scoring.Result
	var evidence retrieval.GateResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := d.scorer.Score(gctx, category, symptoms)
		if err != nil {
			return fmt.Errorf("score %s: %w", category, err)
		}
		scored = res
		return nil
	})
	if d.ranker != nil {
		g.Go(func() error {
			query := retrieval.BuildQuery(category, in.Symptoms, in.Description)
			evidence = d.ranker.Rank(gctx, category, query)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Diagnosis{}, err
	}

	// 3. Fuse
	fused := d.merger.Merge(scored.Ranking, evidence.Ranking)
	discrepancy := fusion.DetectDiscrepancy(scored.Ranking, evidence.Ranking)
	if discrepancy != nil {
		log.Warn("ranking discrepancy", "severity", string(discrepancy.Severity), "message", discrepancy.Message)
	}

	// 4. Sanitize the consensus top bucket
	top, _ := fused.Top()
	outcome := d.sanitizer.Sanitize(string(top))

	// 5. Validate the score (informational)
	validation := d.harness.Run(scored)
	if !validation.Passed {
		log.Warn("score validation failed", "reason", validation.Reason)
	}

	diag := Diagnosis{
		RequestID:       requestID,
		Category:        category,
		Scores:          scored.Scores,
		Total:           scored.Total,
		UnknownSymptoms: scored.Unknown,
		WeightRanking:   scored.Ranking,
		ExternalRanking: evidence.Ranking,
		FusedRanking:    fused,
		Contributions:   d.merger.Breakdown(scored.Ranking, evidence.Ranking),
		Discrepancy:     discrepancy,
		Bucket:          outcome,
		Evidence:        evidence,
		Validation:      validation,
	}
	log.Info("diagnosis", "bucket", outcome.Bucket, "fused", fused.Strings(), "evidence", evidence.Gate3Count)

	record(ctx, d.sink, log, logging.DecisionEntry{
		RequestID: requestID,
		PatientID: in.PatientID,
		Stage:     logging.StageDiagnose,
		Decision:  string(outcome.Bucket),
		Reason:    fmt.Sprintf("fused=%v weight=%v external=%v", fused.Strings(), scored.Ranking.Strings(), evidence.Ranking.Strings()),
	}, diag.Contributions)

	return diag, nil
}

// #endregion diagnose

// #region record
// record writes one provenance entry. Sink failures are logged, never returned.
func record(ctx context.Context, sink DecisionSink, log *logging.Logger, entry logging.DecisionEntry, payload interface{}) {
	if sink == nil {
		return
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.PayloadJSON = string(raw)
		}
	}
	if err := sink.Record(ctx, entry); err != nil {
		log.Warn("provenance write failed", "stage", string(entry.Stage), "error", err)
	}
}

// #endregion record
