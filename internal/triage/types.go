// Package triage wires the decision engine into the two request pipelines:
// diagnosis (stage a) and exercise planning (stage b).
package triage

import (
	"context"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/eval"
	"github.com/danielpatrickdp/rehab-triage/internal/fusion"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
)

// #region sink
// DecisionSink receives one entry per pipeline decision.
// *logging.Provenance satisfies it.
type DecisionSink interface {
	Record(ctx context.Context, entry logging.DecisionEntry) error
}

// HistoryStore is the slice of the session store the planner needs.
// *history.Store satisfies it.
type HistoryStore interface {
	History(ctx context.Context, patientID string, limit int) (assessment.History, error)
	Archive(ctx context.Context, patientID string) (int64, error)
}

// #endregion sink

// #region diagnose-types
// DiagnoseInput is one stage (a) request.
type DiagnoseInput struct {
	PatientID    string                `json:"patient_id,omitempty"`
	Category     string                `json:"category"`
	Symptoms     []string              `json:"symptoms"`
	Demographics *scoring.Demographics `json:"demographics,omitempty"`
	Description  string                `json:"description,omitempty"`
}

// Diagnosis is the stage (a) outcome.
type Diagnosis struct {
	RequestID       string                `json:"request_id"`
	Category        bucket.Category       `json:"category"`
	Scores          []scoring.BucketScore `json:"scores"`
	Total           float64               `json:"total"`
	UnknownSymptoms []string              `json:"unknown_symptoms,omitempty"`
	WeightRanking   bucket.RankedList     `json:"weight_ranking"`
	ExternalRanking bucket.RankedList     `json:"external_ranking"`
	FusedRanking    bucket.RankedList     `json:"fused_ranking"`
	Contributions   []fusion.Contribution `json:"contributions"`
	Discrepancy     *fusion.Discrepancy   `json:"discrepancy,omitempty"`
	Bucket          sanitize.Outcome      `json:"bucket"`
	Evidence        retrieval.GateResult  `json:"evidence"`
	Validation      eval.EvalResult       `json:"validation"`
}

// #endregion diagnose-types

// #region plan-types
// PlanInput is one stage (b) request. When Sessions is nil and the planner
// has a history store, the patient's stored history is used instead.
type PlanInput struct {
	PatientID       string              `json:"patient_id,omitempty"`
	Bucket          string              `json:"bucket"`
	CapabilityScore *int                `json:"capability_score,omitempty"`
	BaseLevels      []string            `json:"base_levels,omitempty"`
	Pain            int                 `json:"pain"`
	RedFlags        []string            `json:"red_flags,omitempty"`
	Sessions        []assessment.Record `json:"sessions,omitempty"`
}

// Plan is the stage (b) outcome.
type Plan struct {
	RequestID      string                `json:"request_id"`
	Bucket         sanitize.Outcome      `json:"bucket"`
	Level          difficulty.Level      `json:"capability_level,omitempty"`
	BaseSet        difficulty.Set        `json:"base_set"`
	Controller     assessment.Result     `json:"controller"`
	Resolution     difficulty.Resolution `json:"resolution"`
	Gate           gate.GateDecision     `json:"gate"`
	PromptAssessed bool                  `json:"prompt_assessment"`
	Archived       int64                 `json:"archived_sessions,omitempty"`
}

// #endregion plan-types
