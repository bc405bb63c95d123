package grpc

import (
	"context"
	"time"

	pb "github.com/dmitrijs2005/chatkeeper/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Recorder receives one call per client request that counts as activity.
type Recorder interface {
	Record()
}

// backup introspection does not count as client activity
var notActivity = map[string]bool{
	pb.FullMethod(pb.MethodTriggerBackup): true,
	pb.FullMethod(pb.MethodBackupStatus):  true,
}

func (s *GRPCServer) activityInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !notActivity[info.FullMethod] {
		if s.activity != nil {
			s.activity.Record()
		}
		s.metrics.RequestRecorded()
	}
	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK, codes.NotFound, codes.InvalidArgument, codes.AlreadyExists:
		s.logger.Debug(ctx, "request handled", args...)
	default:
		s.logger.Warn(ctx, "request failed", append(args, "error", err)...)
	}
	return resp, err
}
