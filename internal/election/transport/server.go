package transport

import (
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"raft-election/internal/election"
)

// Server exposes a VoteHandler, usually an *election.Node, over gRPC.
type Server struct {
	grpcServer *grpc.Server
}

// NewServer registers handler on a new gRPC server. It does not start listening, call Serve for that.
func NewServer(handler election.VoteHandler, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(roundInterceptor)}, opts...)
	s := &Server{grpcServer: grpc.NewServer(opts...)}
	s.grpcServer.RegisterService(&serviceDesc, handler)
	return s
}

// Serve accepts connections on lis. It blocks until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	log.Infof("[TRANSPORT] Serving RequestVote on %s", lis.Addr())
	return s.grpcServer.Serve(lis)
}

// GracefulStop stops accepting RPCs and waits for the pending ones, so a peer never loses a vote it was granted.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) Stop() {
	s.grpcServer.Stop()
}
