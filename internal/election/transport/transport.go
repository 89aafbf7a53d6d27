package transport

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"raft-election/internal/election"
	"raft-election/internal/election/wire"
)

// PeerAddress is a peer and the address its gRPC server listens on
type PeerAddress struct {
	ID   election.NodeID
	Addr string
}

// Transport owns the outbound gRPC connections of a node, one per peer.
type Transport struct {
	registry *Registry
	// A map[election.NodeID]*grpc.ClientConn. sync.Map is optimized for the read-mostly access pattern of the pool.
	clientsConnPool *sync.Map
	// Peers in the order they were given, fixed after construction
	order []election.NodeID
}

// NewTransport registers every peer address and opens a lazy client connection to each of them. Extra dial options
// are appended to the defaults, tests use this to dial in-memory listeners.
func NewTransport(peers []PeerAddress, opts ...grpc.DialOption) *Transport {
	t := &Transport{
		registry:        NewRegistry(),
		clientsConnPool: &sync.Map{},
		order:           make([]election.NodeID, 0, len(peers)),
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithResolvers(t.registry),
	}, opts...)

	for _, p := range peers {
		t.registry.Register(p.ID, p.Addr)
		t.order = append(t.order, p.ID)

		conn, err := grpc.NewClient(Target(p.ID), dialOpts...)
		if err != nil {
			// Failing to set up a channel to a single node should not prevent the others, the peer will simply
			// never answer.
			log.WithField("peer", p.ID).Warnf("[TRANSPORT] Failed establishing a gRPC channel: %v", err)
			continue
		}
		t.clientsConnPool.Store(p.ID, conn)
	}

	return t
}

// Registry exposes the address book, addresses can be updated while the transport is in use
func (t *Transport) Registry() *Registry { return t.registry }

// Peers returns one election.Peer per configured peer, in configuration order
func (t *Transport) Peers() []election.Peer {
	peers := make([]election.Peer, 0, len(t.order))
	for _, id := range t.order {
		peers = append(peers, &Peer{id: id, transport: t})
	}
	return peers
}

// getClientConn retrieves the grpc.ClientConn of a peer from the connection pool
func (t *Transport) getClientConn(peerID election.NodeID) (*grpc.ClientConn, error) {
	clientConn, ok := t.clientsConnPool.Load(peerID)
	if !ok {
		return nil, fmt.Errorf("gRPC client connection not found for peer %v", peerID)
	}

	conn, ok := clientConn.(*grpc.ClientConn)
	if !ok {
		return nil, fmt.Errorf("invalid clientConn type for peer %v. Type is %T", peerID, clientConn)
	}

	return conn, nil
}

// RequestVote sends a single RequestVote RPC. There is no retry: the caller's deadline bounds the attempt and a
// failure means no response for this round.
func (t *Transport) RequestVote(ctx context.Context, peerID election.NodeID, req election.VoteRequest) (election.VoteResponse, error) {
	conn, err := t.getClientConn(peerID)
	if err != nil {
		return election.VoteResponse{}, err
	}

	if roundID, ok := election.RoundIDFromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, roundMetadataKey, roundID)
	}
	if candidate, ok := election.CandidateFromContext(ctx); ok {
		ctx = metadata.AppendToOutgoingContext(ctx, candidateMetadataKey, strconv.FormatInt(int64(candidate), 10))
	}

	in := wire.VoteRequest(req)
	out := new(wire.VoteResponse)
	if err := conn.Invoke(ctx, requestVoteMethod, &in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return election.VoteResponse{}, fmt.Errorf("RequestVote to %v failed: %w", peerID, err)
	}

	return election.VoteResponse(*out), nil
}

// CloseAllClients closes every outbound connection
func (t *Transport) CloseAllClients() {
	t.clientsConnPool.Range(func(key, value any) bool {
		if conn, ok := value.(*grpc.ClientConn); ok {
			if err := conn.Close(); err != nil {
				log.Warnf("[TRANSPORT] Failed to close connection to %v: %v", key, err)
			}
		}
		return true
	})
	log.Debug("[TRANSPORT] All gRPC client connections closed")
}

// Peer is a remote node reached over gRPC. It implements election.Peer.
type Peer struct {
	id        election.NodeID
	transport *Transport
}

func (p *Peer) ID() election.NodeID { return p.id }

func (p *Peer) RequestVote(ctx context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	return p.transport.RequestVote(ctx, p.id, req)
}
