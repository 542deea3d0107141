package rpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/rehab-triage/internal/retrieval"
)

// SearchServiceName is the external evidence search service.
const SearchServiceName = "evidence.v1.EvidenceService"

const MethodSearch = "Search"

// #region search-types
// SearchResponse is the Search body.
type SearchResponse struct {
	Results []retrieval.Hit `json:"results"`
}

// EvidenceService is the server-side contract of evidence.v1.EvidenceService.
type EvidenceService interface {
	Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// EvidenceServiceDesc describes the evidence search service.
var EvidenceServiceDesc = grpc.ServiceDesc{
	ServiceName: SearchServiceName,
	HandlerType: (*EvidenceService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(SearchServiceName, MethodSearch, func(s interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return s.(EvidenceService).Search(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "evidence/v1/evidence.proto",
}

// #endregion search-types

// #region search-client
// SearchClient implements retrieval.Searcher against a remote evidence
// service.
type SearchClient struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewSearchClient wraps conn. timeout bounds each call; zero means no bound.
func NewSearchClient(conn grpc.ClientConnInterface, timeout time.Duration) *SearchClient {
	return &SearchClient{conn: conn, timeout: timeout}
}

// Search queries the evidence store.
func (c *SearchClient) Search(ctx context.Context, req retrieval.SearchRequest) ([]retrieval.Hit, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	in, err := toStruct(req)
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(SearchServiceName, MethodSearch), in, resp); err != nil {
		return nil, fmt.Errorf("search rpc: %w", err)
	}
	var out SearchResponse
	if err := fromStruct(resp, &out, false); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// #endregion search-client

// #region search-server
// SearchServer exposes any retrieval.Searcher as an evidence service.
type SearchServer struct {
	searcher retrieval.Searcher
}

func NewSearchServer(searcher retrieval.Searcher) *SearchServer {
	return &SearchServer{searcher: searcher}
}

// Register installs the evidence service on g.
func (s *SearchServer) Register(g *grpc.Server) {
	g.RegisterService(&EvidenceServiceDesc, s)
}

func (s *SearchServer) Search(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in retrieval.SearchRequest
	if err := fromStruct(req, &in, true); err != nil {
		return nil, toStatus(err)
	}
	if in.Query == "" {
		return nil, status.Error(codes.InvalidArgument, "query is required")
	}
	hits, err := s.searcher.Search(ctx, in)
	if err != nil {
		return nil, toStatus(err)
	}
	if hits == nil {
		hits = []retrieval.Hit{}
	}
	return encode(SearchResponse{Results: hits})
}

// #endregion search-server
