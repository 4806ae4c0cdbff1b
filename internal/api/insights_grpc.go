package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// InsightsServiceName is the fully-qualified gRPC service name.
const InsightsServiceName = "cycle.v1.Insights"

const (
	getInsightsMethod       = "/" + InsightsServiceName + "/GetInsights"
	getWidgetSnapshotMethod = "/" + InsightsServiceName + "/GetWidgetSnapshot"
	recomputeMethod         = "/" + InsightsServiceName + "/Recompute"
)

// InsightsServer is the server API for the cycle.v1.Insights service.
// Payloads are google.protobuf.Struct documents; see handlers.go for their shape.
type InsightsServer interface {
	GetInsights(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetWidgetSnapshot(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Recompute(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterInsightsServer attaches srv to s.
func RegisterInsightsServer(s grpc.ServiceRegistrar, srv InsightsServer) {
	s.RegisterService(&InsightsServiceDesc, srv)
}

func getInsightsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InsightsServer).GetInsights(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getInsightsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InsightsServer).GetInsights(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getWidgetSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InsightsServer).GetWidgetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getWidgetSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InsightsServer).GetWidgetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func recomputeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InsightsServer).Recompute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: recomputeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(InsightsServer).Recompute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// InsightsServiceDesc is the grpc.ServiceDesc for cycle.v1.Insights.
var InsightsServiceDesc = grpc.ServiceDesc{
	ServiceName: InsightsServiceName,
	HandlerType: (*InsightsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInsights", Handler: getInsightsHandler},
		{MethodName: "GetWidgetSnapshot", Handler: getWidgetSnapshotHandler},
		{MethodName: "Recompute", Handler: recomputeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cycle/v1/insights.proto",
}

// InsightsClient is the client API for cycle.v1.Insights.
type InsightsClient struct {
	cc grpc.ClientConnInterface
}

// NewInsightsClient wraps a client connection.
func NewInsightsClient(cc grpc.ClientConnInterface) *InsightsClient {
	return &InsightsClient{cc: cc}
}

// GetInsights calls cycle.v1.Insights/GetInsights.
func (c *InsightsClient) GetInsights(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getInsightsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWidgetSnapshot calls cycle.v1.Insights/GetWidgetSnapshot.
func (c *InsightsClient) GetWidgetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getWidgetSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Recompute calls cycle.v1.Insights/Recompute.
func (c *InsightsClient) Recompute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, recomputeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
