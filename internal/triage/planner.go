package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
)

// #region planner
// Planner runs stage (b): bucket label, session controller, difficulty
// resolver and progression gate.
type Planner struct {
	sanitizer  *sanitize.Sanitizer
	controller *assessment.Controller
	gate       *gate.Gate
	history    HistoryStore
	sink       DecisionSink
	log        *logging.Logger
	now        func() time.Time
}

// NewPlanner wires a planner. nil components fall back to their defaults.
func NewPlanner(sanitizer *sanitize.Sanitizer, controller *assessment.Controller, g *gate.Gate, log *logging.Logger) *Planner {
	log = logging.OrNop(log)
	if sanitizer == nil {
		sanitizer = sanitize.New(sanitize.DefaultConfig(), log)
	}
	if controller == nil {
		controller = assessment.NewController(assessment.DefaultConfig())
	}
	if g == nil {
		g = gate.NewGate(gate.DefaultGateConfig())
	}
	return &Planner{
		sanitizer:  sanitizer,
		controller: controller,
		gate:       g,
		log:        log,
		now:        time.Now,
	}
}

// WithHistory lets requests without inline sessions read the patient's
// stored history. A reset archives the stale records.
func (p *Planner) WithHistory(h HistoryStore) *Planner {
	p.history = h
	return p
}

// WithSink records every stage decision.
func (p *Planner) WithSink(sink DecisionSink) *Planner {
	p.sink = sink
	return p
}

// WithClock replaces time.Now.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// #endregion planner

// #region plan
// Plan computes the allowed difficulty range for the next session.
// Invalid capability input and invalid session records are errors; a
// vetoed gate is a normal outcome with Gate.Action == "skip".
func (p *Planner) Plan(ctx context.Context, in PlanInput) (Plan, error) {
	requestID := uuid.New().String()
	log := p.log.With("request_id", requestID)
	if in.PatientID != "" {
		log = log.With("patient_id", in.PatientID)
	}

	// 1. Base allowed set
	plan := Plan{RequestID: requestID}
	base, level, err := baseSet(in)
	if err != nil {
		return Plan{}, err
	}
	plan.Level = level
	plan.BaseSet = base

	// 2. Session history
	h, fromStore, err := p.loadHistory(ctx, in)
	if err != nil {
		return Plan{}, err
	}

	// 3. Bucket label
	plan.Bucket = p.sanitizer.Sanitize(in.Bucket)
	p.record(ctx, log, in, requestID, logging.StageSanitize, string(plan.Bucket.Bucket),
		fmt.Sprintf("branch=%s matched=%t", plan.Bucket.Branch, plan.Bucket.Matched), plan.Bucket)

	// 4. Controller
	now := p.now()
	plan.Controller = p.controller.Process(h, now)
	plan.PromptAssessed = p.controller.ShouldPromptAssessment(h)
	p.record(ctx, log, in, requestID, logging.StageController, string(plan.Controller.Status),
		plan.Controller.Message, plan.Controller)

	if plan.Controller.Status == assessment.StatusReset && fromStore {
		n, err := p.history.Archive(ctx, in.PatientID)
		if err != nil {
			log.Warn("archive stale sessions failed", "error", err)
		}
		plan.Archived = n
	}

	// 5. Resolver
	plan.Resolution = difficulty.Explain(base, in.Pain, plan.Controller.Adjustment)
	p.record(ctx, log, in, requestID, logging.StageResolver, plan.Resolution.Set.String(),
		fmt.Sprintf("restriction=%s shift=%d", plan.Resolution.Restriction, plan.Resolution.Shift), plan.Resolution)

	// 6. Gate
	plan.Gate = p.gate.Evaluate(gate.Input{
		RedFlags:   in.RedFlags,
		Pain:       in.Pain,
		Controller: plan.Controller,
	})
	p.record(ctx, log, in, requestID, logging.StageGate, plan.Gate.Action, plan.Gate.Reason, plan.Gate)

	log.Info("plan",
		"bucket", plan.Bucket.Bucket,
		"status", string(plan.Controller.Status),
		"allowed", plan.Resolution.Set.String(),
		"action", plan.Gate.Action,
	)
	return plan, nil
}

// #endregion plan

// #region helpers
// baseSet picks the starting range: capability score, then explicit levels,
// then the full scale.
func baseSet(in PlanInput) (difficulty.Set, difficulty.Level, error) {
	switch {
	case in.CapabilityScore != nil:
		level, err := difficulty.LevelFromScore(*in.CapabilityScore)
		if err != nil {
			return difficulty.Set{}, "", err
		}
		return difficulty.BaseSet(level), level, nil
	case len(in.BaseLevels) > 0:
		set, err := difficulty.ParseSet(in.BaseLevels)
		if err != nil {
			return difficulty.Set{}, "", err
		}
		return set, "", nil
	default:
		return difficulty.Prefix(difficulty.High), "", nil
	}
}

func (p *Planner) loadHistory(ctx context.Context, in PlanInput) (assessment.History, bool, error) {
	if in.Sessions != nil {
		for i, r := range in.Sessions {
			if err := r.Validate(); err != nil {
				return assessment.History{}, false, fmt.Errorf("session %d: %w", i, err)
			}
		}
		return assessment.HistoryOf(in.Sessions...), false, nil
	}
	if p.history == nil || in.PatientID == "" {
		return assessment.History{}, false, nil
	}
	h, err := p.history.History(ctx, in.PatientID, 0)
	if err != nil {
		return assessment.History{}, false, fmt.Errorf("load history: %w", err)
	}
	return h, true, nil
}

func (p *Planner) record(ctx context.Context, log *logging.Logger, in PlanInput, requestID string,
	stage logging.Stage, decision, reason string, payload interface{}) {
	record(ctx, p.sink, log, logging.DecisionEntry{
		RequestID: requestID,
		PatientID: in.PatientID,
		Stage:     stage,
		Decision:  decision,
		Reason:    reason,
	}, payload)
}

// #endregion helpers
