package metrics

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"raft-election/internal/election"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m)
	assert.NotNil(t, m.electionDuration)
	assert.False(t, m.startTime.IsZero())
}

func TestMetrics_RecordRequestVote(t *testing.T) {
	m := NewMetrics()

	assert.Equal(t, uint64(0), m.requestVoteCount.Load())

	m.RecordRequestVote()
	assert.Equal(t, uint64(1), m.requestVoteCount.Load())
}

func TestMetrics_RecordVoteDecision(t *testing.T) {
	m := NewMetrics()

	m.RecordVoteDecision(true)
	m.RecordVoteDecision(true)
	m.RecordVoteDecision(false)

	assert.Equal(t, uint64(2), m.votesGranted.Load())
	assert.Equal(t, uint64(1), m.votesDenied.Load())
}

func TestMetrics_RecordElectionOutcome(t *testing.T) {
	m := NewMetrics()

	t.Run("leader counts as won", func(t *testing.T) {
		m.RecordElectionOutcome(election.Outcome{Role: election.Leader})
		assert.Equal(t, uint64(1), m.electionsWon.Load())
	})

	t.Run("step-down counts as lost", func(t *testing.T) {
		m.RecordElectionOutcome(election.Outcome{Role: election.Follower, SteppedDown: true, HigherTerm: 7})
		m.RecordElectionOutcome(election.Outcome{Role: election.Follower, Superseded: true})
		assert.Equal(t, uint64(2), m.electionsLost.Load())
	})

	t.Run("remaining candidate counts as split", func(t *testing.T) {
		m.RecordElectionOutcome(election.Outcome{Role: election.Candidate})
		assert.Equal(t, uint64(1), m.electionsSplit.Load())
	})
}

func TestMetrics_RecordElectionDuration(t *testing.T) {
	m := NewMetrics()

	m.RecordElectionDuration(200 * time.Millisecond)
	m.RecordElectionDuration(150 * time.Millisecond)

	m.electionMu.Lock()
	assert.Len(t, m.electionDuration, 2)
	assert.Equal(t, 200*time.Millisecond, m.electionDuration[0])
	assert.Equal(t, 150*time.Millisecond, m.electionDuration[1])
	m.electionMu.Unlock()
}

func TestMetrics_GetElectionStats(t *testing.T) {
	t.Run("returns empty stats without data", func(t *testing.T) {
		stats := NewMetrics().GetElectionStats()
		assert.Equal(t, 0, stats.Count)
	})

	t.Run("calculates statistics", func(t *testing.T) {
		m := NewMetrics()
		m.RecordElectionDuration(100 * time.Millisecond)
		m.RecordElectionDuration(300 * time.Millisecond)
		m.RecordElectionDuration(200 * time.Millisecond)

		stats := m.GetElectionStats()
		assert.Equal(t, 3, stats.Count)
		assert.InDelta(t, 200.0, stats.Mean, 1.0)
		assert.InDelta(t, 200.0, stats.P50, 1.0)
		assert.InDelta(t, 100.0, stats.Min, 1.0)
		assert.InDelta(t, 300.0, stats.Max, 1.0)
		assert.Greater(t, stats.StdDev, 0.0)
	})

	t.Run("calculates percentiles", func(t *testing.T) {
		m := NewMetrics()
		for i := 1; i <= 100; i++ {
			m.RecordElectionDuration(time.Duration(i) * time.Millisecond)
		}

		stats := m.GetElectionStats()
		assert.InDelta(t, 50.0, stats.P50, 5.0)
		assert.InDelta(t, 95.0, stats.P95, 5.0)
		assert.InDelta(t, 99.0, stats.P99, 5.0)
	})
}

func TestMetrics_GetReport(t *testing.T) {
	m := NewMetrics()

	m.RecordRequestVote()
	m.RecordVoteDecision(true)
	m.RecordElection()
	m.RecordUnreachablePeer()
	m.RecordElectionOutcome(election.Outcome{Role: election.Leader})
	m.RecordElectionDuration(20 * time.Millisecond)

	report := m.GetReport()

	assert.Equal(t, uint64(1), report.RequestVoteCount)
	assert.Equal(t, uint64(1), report.VotesGranted)
	assert.Equal(t, uint64(1), report.ElectionCount)
	assert.Equal(t, uint64(1), report.ElectionsWon)
	assert.Equal(t, uint64(1), report.UnreachablePeers)
	assert.Equal(t, 1, report.ElectionStats.Count)

	var buf bytes.Buffer
	_, err := report.WriteTo(&buf)
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "ELECTION REPORT")
	assert.Contains(t, buf.String(), "won 1")
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	iterations := 1000

	for i := 0; i < iterations; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.RecordRequestVote()
		}()
		go func() {
			defer wg.Done()
			m.RecordElection()
		}()
		go func(i int) {
			defer wg.Done()
			m.RecordElectionDuration(time.Duration(i) * time.Microsecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, uint64(iterations), m.requestVoteCount.Load())
	assert.Equal(t, uint64(iterations), m.electionCount.Load())
	assert.Equal(t, iterations, m.GetElectionStats().Count)
}
