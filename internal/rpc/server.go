package rpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/difficulty"
	"github.com/danielpatrickdp/rehab-triage/internal/history"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/scoring"
	"github.com/danielpatrickdp/rehab-triage/internal/triage"
	"github.com/danielpatrickdp/rehab-triage/internal/weights"
)

// #region messages
// SanitizeRequest is the Sanitize body.
type SanitizeRequest struct {
	Label string `json:"label"`
}

// RecordSessionRequest is the RecordSession body.
type RecordSessionRequest struct {
	PatientID string            `json:"patient_id"`
	Session   assessment.Record `json:"session"`
}

// RecordSessionResponse echoes the stored record.
type RecordSessionResponse struct {
	Session          assessment.Record `json:"session"`
	PromptAssessment bool              `json:"prompt_assessment"`
}

// SessionStore persists session records. *history.Store satisfies it.
type SessionStore interface {
	Append(ctx context.Context, patientID string, rec assessment.Record) (assessment.Record, error)
	History(ctx context.Context, patientID string, limit int) (assessment.History, error)
}

// #endregion messages

// #region server
// Server implements TriageService on top of the pipelines.
type Server struct {
	diagnoser  *triage.Diagnoser
	planner    *triage.Planner
	sanitizer  *sanitize.Sanitizer
	sessions   SessionStore
	controller *assessment.Controller
	log        *logging.Logger
}

// NewServer wires the service. sessions may be nil, in which case
// RecordSession answers Unimplemented.
func NewServer(d *triage.Diagnoser, p *triage.Planner, s *sanitize.Sanitizer,
	sessions SessionStore, controller *assessment.Controller, log *logging.Logger) *Server {
	log = logging.OrNop(log)
	if s == nil {
		s = sanitize.New(sanitize.DefaultConfig(), log)
	}
	if controller == nil {
		controller = assessment.NewController(assessment.DefaultConfig())
	}
	return &Server{
		diagnoser:  d,
		planner:    p,
		sanitizer:  s,
		sessions:   sessions,
		controller: controller,
		log:        log,
	}
}

// Register installs the triage service and the standard health service.
func (s *Server) Register(g *grpc.Server) *health.Server {
	g.RegisterService(&TriageServiceDesc, s)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(g, hs)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// NewGRPCServer builds a grpc.Server with the logging interceptor installed.
func NewGRPCServer(log *logging.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryInterceptor(log)))
	return grpc.NewServer(opts...)
}

// #endregion server

// #region handlers
func (s *Server) Diagnose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.diagnoser == nil {
		return nil, status.Error(codes.Unimplemented, "diagnosis is not configured")
	}
	var in triage.DiagnoseInput
	if err := fromStruct(req, &in, true); err != nil {
		return nil, toStatus(err)
	}
	out, err := s.diagnoser.Diagnose(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(out)
}

func (s *Server) Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.planner == nil {
		return nil, status.Error(codes.Unimplemented, "planning is not configured")
	}
	var in triage.PlanInput
	if err := fromStruct(req, &in, true); err != nil {
		return nil, toStatus(err)
	}
	out, err := s.planner.Plan(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(out)
}

func (s *Server) Sanitize(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in SanitizeRequest
	if err := fromStruct(req, &in, true); err != nil {
		return nil, toStatus(err)
	}
	return encode(s.sanitizer.Sanitize(in.Label))
}

func (s *Server) RecordSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "session history is not configured")
	}
	var in RecordSessionRequest
	if err := fromStruct(req, &in, true); err != nil {
		return nil, toStatus(err)
	}
	rec, err := s.sessions.Append(ctx, in.PatientID, in.Session)
	if err != nil {
		return nil, toStatus(err)
	}
	h, err := s.sessions.History(ctx, in.PatientID, 0)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(RecordSessionResponse{
		Session:          rec,
		PromptAssessment: s.controller.ShouldPromptAssessment(h),
	})
}

func encode(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// #endregion handlers

// #region errors
// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, weights.ErrNotProvisioned):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, errDecode),
		errors.Is(err, bucket.ErrUnknownCategory),
		errors.Is(err, assessment.ErrInvalidRecord),
		errors.Is(err, difficulty.ErrInvalidScore),
		errors.Is(err, difficulty.ErrNotPrefix),
		errors.Is(err, scoring.ErrInvalidDemographics),
		errors.Is(err, history.ErrEmptyPatient):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// #endregion errors

// #region interceptor
// UnaryInterceptor logs every call and records request metrics.
func UnaryInterceptor(log *logging.Logger) grpc.UnaryServerInterceptor {
	log = logging.OrNop(log)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		elapsed := time.Since(start)

		metrics.RPCRequests.WithLabelValues(info.FullMethod, code.String()).Inc()
		metrics.RPCLatency.WithLabelValues(info.FullMethod).Observe(elapsed.Seconds())

		switch code {
		case codes.OK:
			log.Debug("rpc", "method", info.FullMethod, "duration", elapsed)
		case codes.Internal, codes.Unknown:
			log.Error("rpc failed", "method", info.FullMethod, "code", code.String(), "duration", elapsed, "error", err)
		default:
			log.Warn("rpc rejected", "method", info.FullMethod, "code", code.String(), "error", err)
		}
		return resp, err
	}
}

// #endregion interceptor
