package mocks

import (
	"sync"
	"time"

	"raft-election/internal/election"
)

// MockMetricsCollector is a mock implementation of election.MetricsCollector for testing
type MockMetricsCollector struct {
	mu                sync.RWMutex
	RequestVoteCount  int
	VotesGranted      int
	VotesDenied       int
	ElectionCount     int
	UnreachableCount  int
	Outcomes          []election.Outcome
	ElectionDurations []time.Duration
}

func NewMockMetricsCollector() *MockMetricsCollector {
	return &MockMetricsCollector{}
}

func (m *MockMetricsCollector) RecordRequestVote() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestVoteCount++
}

func (m *MockMetricsCollector) RecordVoteDecision(granted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if granted {
		m.VotesGranted++
	} else {
		m.VotesDenied++
	}
}

func (m *MockMetricsCollector) RecordElection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionCount++
}

func (m *MockMetricsCollector) RecordElectionOutcome(outcome election.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes = append(m.Outcomes, outcome)
}

func (m *MockMetricsCollector) RecordElectionDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ElectionDurations = append(m.ElectionDurations, duration)
}

func (m *MockMetricsCollector) RecordUnreachablePeer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnreachableCount++
}

// MetricsSnapshot is a lock-free copy of the recorded values
type MetricsSnapshot struct {
	RequestVoteCount  int
	VotesGranted      int
	VotesDenied       int
	ElectionCount     int
	UnreachableCount  int
	Outcomes          []election.Outcome
	ElectionDurations []time.Duration
}

// Snapshot returns a copy that is safe to inspect while the node keeps running
func (m *MockMetricsCollector) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		RequestVoteCount:  m.RequestVoteCount,
		VotesGranted:      m.VotesGranted,
		VotesDenied:       m.VotesDenied,
		ElectionCount:     m.ElectionCount,
		UnreachableCount:  m.UnreachableCount,
		Outcomes:          append([]election.Outcome(nil), m.Outcomes...),
		ElectionDurations: append([]time.Duration(nil), m.ElectionDurations...),
	}
}
