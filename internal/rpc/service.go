// Package rpc exposes the triage pipelines over gRPC. Payloads are
// google.protobuf.Struct documents carrying the JSON form of the triage types,
// so the service needs no generated stubs.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "triage.v1.TriageService"

// Method names.
const (
	MethodDiagnose      = "Diagnose"
	MethodPlan          = "Plan"
	MethodSanitize      = "Sanitize"
	MethodRecordSession = "RecordSession"
)

// #region service-interface
// TriageService is the server-side contract of triage.v1.TriageService.
type TriageService interface {
	Diagnose(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Plan(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Sanitize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RecordSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// #endregion service-interface

// #region service-desc
// TriageServiceDesc describes the service for grpc.Server.RegisterService.
var TriageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TriageService)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(ServiceName, MethodDiagnose, func(s interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return s.(TriageService).Diagnose(ctx, in)
		}),
		unaryMethod(ServiceName, MethodPlan, func(s interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return s.(TriageService).Plan(ctx, in)
		}),
		unaryMethod(ServiceName, MethodSanitize, func(s interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return s.(TriageService).Sanitize(ctx, in)
		}),
		unaryMethod(ServiceName, MethodRecordSession, func(s interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return s.(TriageService).RecordSession(ctx, in)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "triage/v1/triage.proto",
}

type structCall func(srv interface{}, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// unaryMethod builds a MethodDesc for a Struct-in, Struct-out call.
func unaryMethod(service, name string, call structCall) grpc.MethodDesc {
	method := fullMethod(service, name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func fullMethod(service, name string) string {
	return "/" + service + "/" + name
}

// #endregion service-desc
