package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/chatkeeper/internal/logging"
	pb "github.com/dmitrijs2005/chatkeeper/internal/proto"
	"github.com/dmitrijs2005/chatkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/chatkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address       string
	conversations *services.ConversationService
	backups       BackupService
	activity      Recorder
	metrics       *metrics.Metrics
	logger        logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, cs *services.ConversationService, bs BackupService, activity Recorder, m *metrics.Metrics) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		conversations: cs,
		backups:       bs,
		activity:      activity,
		metrics:       m,
	}
}

// NewServer builds a grpc.Server with the interceptors and the service
// registered, ready to Serve on any listener.
func (s *GRPCServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.activityInterceptor))
	pb.RegisterChatKeeperServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
