package rpc

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/sanitize"
	"github.com/danielpatrickdp/rehab-triage/internal/triage"
)

// #region client-struct
// Client calls a remote TriageService.
type Client struct {
	conn grpc.ClientConnInterface
	// closer is nil when the connection is owned by the caller.
	closer interface{ Close() error }
}

// #endregion client-struct

// #region constructor
// Dial connects to a triage server. The connection is lazy; the first call
// establishes it.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, closer: conn}, nil
}

// NewClientWithConn wraps a caller-owned connection.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection when the client owns it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// #endregion close

// #region calls
func (c *Client) Diagnose(ctx context.Context, in triage.DiagnoseInput) (triage.Diagnosis, error) {
	var out triage.Diagnosis
	err := c.call(ctx, MethodDiagnose, in, &out)
	return out, err
}

func (c *Client) Plan(ctx context.Context, in triage.PlanInput) (triage.Plan, error) {
	var out triage.Plan
	err := c.call(ctx, MethodPlan, in, &out)
	return out, err
}

func (c *Client) Sanitize(ctx context.Context, label string) (sanitize.Outcome, error) {
	var out sanitize.Outcome
	err := c.call(ctx, MethodSanitize, SanitizeRequest{Label: label}, &out)
	return out, err
}

func (c *Client) RecordSession(ctx context.Context, patientID string, rec assessment.Record) (RecordSessionResponse, error) {
	var out RecordSessionResponse
	err := c.call(ctx, MethodRecordSession, RecordSessionRequest{PatientID: patientID, Session: rec}, &out)
	return out, err
}

// Healthy asks the standard health service whether the triage service is serving.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fmt.Errorf("health rpc: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) call(ctx context.Context, method string, in, out interface{}) error {
	req, err := toStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(ServiceName, method), req, resp); err != nil {
		return fmt.Errorf("%s rpc: %w", strings.ToLower(method), err)
	}
	return fromStruct(resp, out, false)
}

// #endregion calls
