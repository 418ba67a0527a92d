package commands

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/foundrysync/mimic/internal/logger"
	"github.com/foundrysync/mimic/pkg/sharding/rpc"
)

// startShardListener binds addr and serves forwarded entity RPCs against
// handler until the returned *grpc.Server is stopped.
func startShardListener(addr string, handler rpc.Handler) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := grpc.NewServer()
	rpc.RegisterEntityServiceServer(srv, handler)

	go func() {
		if err := srv.Serve(lis); err != nil {
			logger.L(context.Background()).Warn("shard rpc server stopped", logger.KeyError, err)
		}
	}()
	return srv, nil
}
