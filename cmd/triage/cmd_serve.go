package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
	"github.com/danielpatrickdp/rehab-triage/internal/rpc"
)

var (
	evidenceAddr   string
	evidenceCorpus string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC triage service and the metrics endpoint",
	Long: `Starts triage.v1.TriageService (Diagnose, Plan, Sanitize, RecordSession) with
the standard gRPC health service, and serves Prometheus metrics over HTTP.
Weight tables listed under weights.preload are loaded before serving.`,
	RunE: runServe,
}

var serveEvidenceCmd = &cobra.Command{
	Use:   "serve-evidence",
	Short: "Serve an in-memory evidence corpus as evidence.v1.EvidenceService",
	Long: `Loads a JSON corpus of the form {"knee": [hit, ...], ...} and answers
Search calls by keyword overlap. Point retrieval.search_addr at it.`,
	RunE: runServeEvidence,
}

func init() {
	serveEvidenceCmd.Flags().StringVar(&evidenceAddr, "addr", ":50052", "listen address")
	serveEvidenceCmd.Flags().StringVar(&evidenceCorpus, "corpus", "", "path to the JSON corpus")
	_ = serveEvidenceCmd.MarkFlagRequired("corpus")
}

// #region serve
func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	// 1. Fail fast on unprovisioned categories
	if cats := cfg.PreloadCategories(); len(cats) > 0 {
		if err := e.weights.Preload(ctx, cats...); err != nil {
			return fmt.Errorf("preload weights: %w", err)
		}
		logger.Info("weights preloaded", "categories", cats)
	}

	// 2. gRPC
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}
	g := rpc.NewGRPCServer(logger)
	health := rpc.NewServer(e.diagnoser, e.planner, e.sanitizer, e.store, e.controller, logger).Register(g)

	// 3. Metrics
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger.Info("triage service ready",
		"grpc", cfg.Server.GRPCAddr,
		"metrics", cfg.Server.MetricsAddr,
		"db", cfg.DBPath(),
		"weights", cfg.Weights.Source,
		"evidence", cfg.Retrieval.SearchAddr,
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return g.Serve(lis)
	})
	eg.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		health.Shutdown()
		shutdown(g, metricsSrv)
		return nil
	})
	return eg.Wait()
}

func shutdown(g *grpc.Server, metricsSrv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		g.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.Stop()
	}
}

// #endregion serve

// #region serve-evidence
func runServeEvidence(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searcher, n, err := loadCorpus(evidenceCorpus)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", evidenceAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", evidenceAddr, err)
	}
	g := rpc.NewGRPCServer(logger)
	rpc.NewSearchServer(searcher).Register(g)
	logger.Info("evidence service ready", "addr", evidenceAddr, "documents", n)

	go func() {
		<-ctx.Done()
		g.GracefulStop()
	}()
	return g.Serve(lis)
}

// loadCorpus reads {"<category>": [Hit, ...]} into a MemorySearcher.
func loadCorpus(path string) (*retrieval.MemorySearcher, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read corpus: %w", err)
	}
	var raw map[string][]retrieval.Hit
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parse corpus %s: %w", path, err)
	}
	m := retrieval.NewMemorySearcher()
	n := 0
	for name, hits := range raw {
		cat, err := bucket.ParseCategory(name)
		if err != nil {
			return nil, 0, fmt.Errorf("corpus %s: %w", path, err)
		}
		for _, h := range hits {
			m.Add(cat, h)
			n++
		}
	}
	return m, n, nil
}

// #endregion serve-evidence
