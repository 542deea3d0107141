package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/config"
	"github.com/danielpatrickdp/rehab-triage/internal/eval"
	"github.com/danielpatrickdp/rehab-triage/internal/fusion"
	"github.com/danielpatrickdp/rehab-triage/internal/gate"
	"github.com/danielpatrickdp/rehab-triage/internal/history"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
	"github.com/danielpatrickdp/rehab-triage/internal/rpc"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
	"github.com/danielpatrickdp/rehab-triage/internal/triage"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

// #region engine
// engine is every component a command may need, built from one config.
type engine struct {
	store      *history.Store
	provenance *logging.Provenance
	weights    *weights.Store
	sanitizer  *sanitize.Sanitizer
	controller *assessment.Controller
	diagnoser  *triage.Diagnoser
	planner    *triage.Planner

	closers []func() error
}

func openEngine(cfg *config.Config, log *logging.Logger) (*engine, error) {
	e := &engine{}

	// 1. Session history + provenance share one SQLite file
	store, err := history.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	e.store = store
	e.closers = append(e.closers, store.Close)
	e.provenance = logging.NewProvenance(store.DB())

	// 2. Weight tables
	source, err := e.weightSource(cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.weights = weights.NewStore(source, log)

	// 3. Sanitizer and controller
	def, err := cfg.DefaultBucket()
	if err != nil {
		e.Close()
		return nil, err
	}
	valid, err := cfg.ValidBuckets()
	if err != nil {
		e.Close()
		return nil, err
	}
	e.sanitizer = sanitize.New(sanitize.Config{Valid: valid, Default: def}, log)
	e.controller = assessment.NewController(assessment.Config{
		StaleAfter: cfg.StaleAfter(),
		CycleSize:  cfg.Controller.CycleSize,
	})

	// 4. Optional evidence retrieval
	ranker, err := e.evidenceRanker(cfg, log)
	if err != nil {
		e.Close()
		return nil, err
	}

	merger, err := fusion.NewMerger(cfg.Fusion.WeightRatio)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.diagnoser = triage.NewDiagnoser(
		scoring.NewEngine(e.weights, log),
		ranker,
		merger,
		e.sanitizer,
		eval.NewEvalHarness(eval.DefaultEvalConfig()),
		log,
	).WithSink(e.provenance)

	e.planner = triage.NewPlanner(
		e.sanitizer,
		e.controller,
		gate.NewGate(gate.GateConfig{SkipOnRedFlag: cfg.Gate.SkipOnRedFlag}),
		log,
	).WithHistory(e.store).WithSink(e.provenance)

	return e, nil
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i]()
	}
	e.closers = nil
}

func (e *engine) weightSource(cfg *config.Config) (weights.Source, error) {
	switch cfg.Weights.Source {
	case config.SourceSQL:
		return weights.NewSQLSource(e.store.DB()), nil
	case config.SourceRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Weights.RedisAddr})
		e.closers = append(e.closers, client.Close)
		return weights.NewRedisSource(client), nil
	default:
		return weights.NewFileSource(cfg.WeightsDir()), nil
	}
}

func (e *engine) evidenceRanker(cfg *config.Config, log *logging.Logger) (*retrieval.Ranker, error) {
	if cfg.Retrieval.SearchAddr == "" {
		return nil, nil
	}
	timeout, err := cfg.RetrievalTimeout()
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(cfg.Retrieval.SearchAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("evidence dial %s: %w", cfg.Retrieval.SearchAddr, err)
	}
	e.closers = append(e.closers, conn.Close)

	rc := retrieval.DefaultConfig()
	rc.MinScore = float32(cfg.Retrieval.MinScore)
	if cfg.Retrieval.TopK > 0 {
		rc.TopK = cfg.Retrieval.TopK
	}
	return retrieval.NewRanker(rpc.NewSearchClient(conn, timeout), rc, log), nil
}

// #endregion engine

// #region backend
// backend is what the request commands talk to: the local engine or a
// remote server. *rpc.Client satisfies it.
type backend interface {
	Diagnose(ctx context.Context, in triage.DiagnoseInput) (triage.Diagnosis, error)
	Plan(ctx context.Context, in triage.PlanInput) (triage.Plan, error)
	Sanitize(ctx context.Context, label string) (sanitize.Outcome, error)
	RecordSession(ctx context.Context, patientID string, rec assessment.Record) (rpc.RecordSessionResponse, error)
	Close() error
}

type localBackend struct {
	e *engine
}

func (b localBackend) Diagnose(ctx context.Context, in triage.DiagnoseInput) (triage.Diagnosis, error) {
	return b.e.diagnoser.Diagnose(ctx, in)
}

func (b localBackend) Plan(ctx context.Context, in triage.PlanInput) (triage.Plan, error) {
	return b.e.planner.Plan(ctx, in)
}

func (b localBackend) Sanitize(_ context.Context, label string) (sanitize.Outcome, error) {
	return b.e.sanitizer.Sanitize(label), nil
}

func (b localBackend) RecordSession(ctx context.Context, patientID string, rec assessment.Record) (rpc.RecordSessionResponse, error) {
	stored, err := b.e.store.Append(ctx, patientID, rec)
	if err != nil {
		return rpc.RecordSessionResponse{}, err
	}
	h, err := b.e.store.History(ctx, patientID, 0)
	if err != nil {
		return rpc.RecordSessionResponse{}, err
	}
	return rpc.RecordSessionResponse{
		Session:          stored,
		PromptAssessment: b.e.controller.ShouldPromptAssessment(h),
	}, nil
}

func (b localBackend) Close() error {
	b.e.Close()
	return nil
}

// openBackend honours --remote.
func openBackend() (backend, error) {
	if remoteAddr != "" {
		client, err := rpc.Dial(remoteAddr)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	e, err := openEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	return localBackend{e: e}, nil
}

// #endregion backend
