package mocks

import (
	"sync"

	"raft-election/internal/election"
)

// MockJournal is an in-memory election.Journal
type MockJournal struct {
	mu     sync.Mutex
	Rounds []election.Outcome
	Votes  []election.VoteRequest

	// Error injection for testing
	RecordRoundError error
	RecordVoteError  error
}

func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (m *MockJournal) RecordRound(_ election.NodeID, outcome election.Outcome) error {
	if m.RecordRoundError != nil {
		return m.RecordRoundError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rounds = append(m.Rounds, outcome)
	return nil
}

func (m *MockJournal) RecordVote(_ election.NodeID, req election.VoteRequest, _ election.VoteResponse) error {
	if m.RecordVoteError != nil {
		return m.RecordVoteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Votes = append(m.Votes, req)
	return nil
}

func (m *MockJournal) RoundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Rounds)
}

func (m *MockJournal) VoteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Votes)
}
