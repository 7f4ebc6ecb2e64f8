package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/davidespo/rules-engine/internal/core/metrics"
)

// ServiceName is the fully qualified gRPC service name.
// Messages are google.protobuf.Struct, so no generated code is needed.
const ServiceName = "rulesengine.v1.InsightService"

// Full method names.
const (
	EvaluateAllMethod = "/" + ServiceName + "/EvaluateAll"
	GetInsightMethod  = "/" + ServiceName + "/GetInsight"
	ListRulesMethod   = "/" + ServiceName + "/ListRules"
)

// InsightServiceServer is the server API for InsightService.
type InsightServiceServer interface {
	EvaluateAll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetInsight(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRules(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// InsightServiceDesc describes InsightService for grpc.Server.RegisterService.
var InsightServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InsightServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "EvaluateAll",
			Handler:    unaryHandler(EvaluateAllMethod, InsightServiceServer.EvaluateAll),
		},
		{
			MethodName: "GetInsight",
			Handler:    unaryHandler(GetInsightMethod, InsightServiceServer.GetInsight),
		},
		{
			MethodName: "ListRules",
			Handler:    unaryHandler(ListRulesMethod, InsightServiceServer.ListRules),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rulesengine/v1/insight.proto",
}

// RegisterInsightServiceServer registers srv on s.
func RegisterInsightServiceServer(s grpc.ServiceRegistrar, srv InsightServiceServer) {
	s.RegisterService(&InsightServiceDesc, srv)
}

type structMethod func(InsightServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// unaryHandler adapts a Struct->Struct method to grpc.MethodDesc.Handler,
// running it through the server's interceptor chain.
func unaryHandler(fullMethod string, call structMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(InsightServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(InsightServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// InsightServer binds Service to InsightServiceServer.
type InsightServer struct {
	svc *Service
}

// NewInsightServer creates the gRPC binding for svc.
func NewInsightServer(svc *Service) *InsightServer {
	return &InsightServer{svc: svc}
}

// EvaluateAll handles {records: [...]} and returns {matches: [{recordId, ruleId}]}.
func (g *InsightServer) EvaluateAll(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw, ok := req.AsMap()[fieldRecords]
	if !ok {
		return nil, StatusError(fmt.Errorf("%w: %s required", ErrInvalidRequest, fieldRecords))
	}
	records, err := DecodeRecords(raw)
	if err != nil {
		return nil, StatusError(err)
	}

	matches, err := g.svc.Evaluate(ctx, metrics.SurfaceGRPC, records)
	if err != nil {
		return nil, StatusError(err)
	}
	return toStruct(MatchesPayload(matches))
}

// GetInsight handles {ruleId, record} and returns {found, insight}.
func (g *InsightServer) GetInsight(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	body := req.AsMap()
	ruleID, _ := body[fieldRuleID].(string)

	record, err := DecodeRecord(body[fieldRecord])
	if err != nil {
		return nil, StatusError(err)
	}

	insight, found, err := g.svc.Insight(ctx, ruleID, record)
	if err != nil {
		return nil, StatusError(err)
	}
	return toStruct(InsightPayload(insight, found))
}

// ListRules returns {rules: [...]} in evaluation order.
func (g *InsightServer) ListRules(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	rs, err := g.svc.ListRules(ctx)
	if err != nil {
		return nil, StatusError(err)
	}
	return toStruct(RulesPayload(rs))
}

func toStruct(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, StatusError(fmt.Errorf("encode response: %w", err))
	}
	return s, nil
}

// InsightServiceClient is the client API for InsightService.
type InsightServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewInsightServiceClient creates a client over cc.
func NewInsightServiceClient(cc grpc.ClientConnInterface) *InsightServiceClient {
	return &InsightServiceClient{cc: cc}
}

// EvaluateAll calls InsightService.EvaluateAll.
func (c *InsightServiceClient) EvaluateAll(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EvaluateAllMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInsight calls InsightService.GetInsight.
func (c *InsightServiceClient) GetInsight(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetInsightMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRules calls InsightService.ListRules.
func (c *InsightServiceClient) ListRules(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListRulesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
