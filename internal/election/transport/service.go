package transport

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"raft-election/internal/election"
	"raft-election/internal/election/wire"
)

const (
	serviceName       = "election.ElectionService"
	requestVoteMethod = "/" + serviceName + "/RequestVote"

	// roundMetadataKey carries the id of the election round a RequestVote belongs to
	roundMetadataKey = "x-election-round"
	// candidateMetadataKey carries the id of the node that started the round
	candidateMetadataKey = "x-election-candidate"
)

// serviceDesc is what protoc-gen-go-grpc would generate for
//
//	service ElectionService { rpc RequestVote(VoteRequest) returns (VoteResponse); }
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*election.VoteHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestVote",
			Handler:    requestVoteHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "election.proto",
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wire.VoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	handle := func(ctx context.Context, req any) (any, error) {
		resp, err := srv.(election.VoteHandler).HandleVoteRequest(ctx, election.VoteRequest(*req.(*wire.VoteRequest)))
		if err != nil {
			return nil, toStatus(err)
		}
		out := wire.VoteResponse(resp)
		return &out, nil
	}

	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: requestVoteMethod,
	}
	return interceptor(ctx, in, info, handle)
}

// roundInterceptor moves the round id and the sending candidate from the incoming metadata into the request context,
// where the node's logs pick them up.
func roundInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(roundMetadataKey); len(ids) > 0 {
			ctx = election.WithRoundID(ctx, ids[0])
		}
		if ids := md.Get(candidateMetadataKey); len(ids) > 0 {
			if id, err := strconv.ParseInt(ids[0], 10, 64); err == nil {
				ctx = election.WithCandidate(ctx, election.NodeID(id))
			}
		}
	}
	return handler(ctx, req)
}

func toStatus(err error) error {
	if errors.Is(err, election.ErrNodeStopped) {
		return status.Error(codes.Unavailable, err.Error())
	}
	if s := status.FromContextError(err); s.Code() != codes.Unknown {
		return s.Err()
	}
	return status.Error(codes.Internal, err.Error())
}
