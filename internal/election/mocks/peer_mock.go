package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"raft-election/internal/election"
)

// MockPeer is a testify mock of election.Peer. Set expectations on "RequestVote".
type MockPeer struct {
	mock.Mock
	PeerID election.NodeID
}

func NewMockPeer(id election.NodeID) *MockPeer {
	return &MockPeer{PeerID: id}
}

func (m *MockPeer) ID() election.NodeID { return m.PeerID }

func (m *MockPeer) RequestVote(ctx context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(election.VoteResponse), args.Error(1)
}

// StubPeer always returns the same answer, and counts the requests it received.
type StubPeer struct {
	mu       sync.Mutex
	PeerID   election.NodeID
	Response election.VoteResponse
	Err      error
	// Delay is waited before answering, unless the context ends first
	Delay    time.Duration
	Requests []election.VoteRequest
}

// NewHigherTermPeer returns a peer that denies every request with the given term
func NewHigherTermPeer(id election.NodeID, term uint64) *StubPeer {
	return &StubPeer{PeerID: id, Response: election.VoteResponse{Term: term, VoteGranted: false}}
}

// NewUnreachablePeer returns a peer whose every call fails with err
func NewUnreachablePeer(id election.NodeID, err error) *StubPeer {
	return &StubPeer{PeerID: id, Err: err}
}

func (s *StubPeer) ID() election.NodeID { return s.PeerID }

func (s *StubPeer) RequestVote(ctx context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return election.VoteResponse{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return election.VoteResponse{}, s.Err
	}
	return s.Response, nil
}

// RequestCount returns how many requests the peer received
func (s *StubPeer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// SilentPeer never answers and ignores the context, like a node that crashed after accepting the connection.
// Release unblocks the pending calls at the end of a test.
type SilentPeer struct {
	PeerID   election.NodeID
	once     sync.Once
	released chan struct{}
}

func NewSilentPeer(id election.NodeID) *SilentPeer {
	return &SilentPeer{PeerID: id, released: make(chan struct{})}
}

func (s *SilentPeer) ID() election.NodeID { return s.PeerID }

func (s *SilentPeer) RequestVote(_ context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	<-s.released
	return election.VoteResponse{Term: req.Term, VoteGranted: true}, nil
}

func (s *SilentPeer) Release() {
	s.once.Do(func() { close(s.released) })
}
