package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name forwarded entity operations are
// registered under.
const ServiceName = "mimic.sharding.EntityService"

// Handler is implemented by the node that owns an entity (document) and
// actually runs forwarded operations against its local registry.
type Handler interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error)
	GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*GetSnapshotResponse, error)
	Touch(ctx context.Context, req *TouchRequest) (*TouchResponse, error)
	SetPresence(ctx context.Context, req *SetPresenceRequest) (*SetPresenceResponse, error)
	RemovePresence(ctx context.Context, req *RemovePresenceRequest) (*RemovePresenceResponse, error)
	GetPresenceSnapshot(ctx context.Context, req *GetPresenceSnapshotRequest) (*GetPresenceSnapshotResponse, error)
}

// RegisterEntityServiceServer registers h against s using a hand-written
// ServiceDesc, the same role a protoc-generated RegisterXServer function
// would play.
func RegisterEntityServiceServer(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&serviceDesc, h)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: submitHandler},
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
		{MethodName: "Touch", Handler: touchHandler},
		{MethodName: "SetPresence", Handler: setPresenceHandler},
		{MethodName: "RemovePresence", Handler: removePresenceHandler},
		{MethodName: "GetPresenceSnapshot", Handler: getPresenceSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mimic/sharding/entity.proto",
}

func submitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.Submit(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Submit")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.Submit(ctx, req.(*SubmitRequest))
	})
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.GetSnapshot(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetSnapshot")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.GetSnapshot(ctx, req.(*GetSnapshotRequest))
	})
}

func touchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(TouchRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.Touch(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Touch")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.Touch(ctx, req.(*TouchRequest))
	})
}

func setPresenceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SetPresenceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.SetPresence(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("SetPresence")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.SetPresence(ctx, req.(*SetPresenceRequest))
	})
}

func removePresenceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(RemovePresenceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.RemovePresence(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("RemovePresence")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.RemovePresence(ctx, req.(*RemovePresenceRequest))
	})
}

func getPresenceSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetPresenceSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	h := srv.(Handler)
	if interceptor == nil {
		return h.GetPresenceSnapshot(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetPresenceSnapshot")}
	return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
		return h.GetPresenceSnapshot(ctx, req.(*GetPresenceSnapshotRequest))
	})
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}
