package metrics

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"raft-election/internal/election"
)

// Metrics collects counters and timings of a node's elections. It implements election.MetricsCollector.
type Metrics struct {
	// RPC counters
	requestVoteCount atomic.Uint64
	votesGranted     atomic.Uint64
	votesDenied      atomic.Uint64
	unreachablePeers atomic.Uint64

	// Leader election metrics
	electionCount    atomic.Uint64
	electionsWon     atomic.Uint64
	electionsLost    atomic.Uint64
	electionsSplit   atomic.Uint64
	electionDuration []time.Duration
	electionMu       sync.Mutex

	startTime time.Time
}

var _ election.MetricsCollector = (*Metrics)(nil)

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		electionDuration: make([]time.Duration, 0, 100),
		startTime:        time.Now(),
	}
}

// RecordRequestVote increments the number of vote requests this node answered
func (m *Metrics) RecordRequestVote() {
	m.requestVoteCount.Add(1)
}

// RecordVoteDecision counts a granted or denied vote
func (m *Metrics) RecordVoteDecision(granted bool) {
	if granted {
		m.votesGranted.Add(1)
	} else {
		m.votesDenied.Add(1)
	}
}

// RecordElection records that this node started an election round
func (m *Metrics) RecordElection() {
	m.electionCount.Add(1)
}

// RecordElectionOutcome classifies a finished round as won, lost (stepped down or superseded) or split.
func (m *Metrics) RecordElectionOutcome(outcome election.Outcome) {
	switch {
	case outcome.Role == election.Leader:
		m.electionsWon.Add(1)
	case outcome.SteppedDown || outcome.Superseded:
		m.electionsLost.Add(1)
	default:
		m.electionsSplit.Add(1)
	}
}

// RecordElectionDuration records how long an election round took
func (m *Metrics) RecordElectionDuration(duration time.Duration) {
	m.electionMu.Lock()
	m.electionDuration = append(m.electionDuration, duration)
	m.electionMu.Unlock()
}

// RecordUnreachablePeer counts a peer that gave no answer in a round
func (m *Metrics) RecordUnreachablePeer() {
	m.unreachablePeers.Add(1)
}

// LatencyStats contains percentile statistics for durations
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

// GetElectionStats returns statistics about the duration of election rounds
func (m *Metrics) GetElectionStats() LatencyStats {
	m.electionMu.Lock()
	durations := make([]time.Duration, len(m.electionDuration))
	copy(durations, m.electionDuration)
	m.electionMu.Unlock()

	return computeStats(durations)
}

func computeStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sort.Slice(durations, func(i, j int) bool {
		return durations[i] < durations[j]
	})

	durationsMs := make([]float64, len(durations))
	var sum float64
	for i, dur := range durations {
		ms := float64(dur.Microseconds()) / 1000.0
		durationsMs[i] = ms
		sum += ms
	}

	mean := sum / float64(len(durationsMs))

	var variance float64
	for _, dur := range durationsMs {
		diff := dur - mean
		variance += diff * diff
	}

	return LatencyStats{
		Count:  len(durations),
		Min:    durationsMs[0],
		Max:    durationsMs[len(durationsMs)-1],
		Mean:   mean,
		P50:    percentile(durationsMs, 50),
		P95:    percentile(durationsMs, 95),
		P99:    percentile(durationsMs, 99),
		StdDev: math.Sqrt(variance / float64(len(durationsMs))),
	}
}

// percentile calculates the nth percentile from sorted data
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	// Linear interpolation
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Report contains all collected metrics
type Report struct {
	Uptime    float64   `json:"uptime_seconds"`
	StartTime time.Time `json:"start_time"`

	// Voter side
	RequestVoteCount uint64 `json:"request_vote_count"`
	VotesGranted     uint64 `json:"votes_granted"`
	VotesDenied      uint64 `json:"votes_denied"`

	// Candidate side
	ElectionCount    uint64       `json:"election_count"`
	ElectionsWon     uint64       `json:"elections_won"`
	ElectionsLost    uint64       `json:"elections_lost"`
	ElectionsSplit   uint64       `json:"elections_split"`
	UnreachablePeers uint64       `json:"unreachable_peers"`
	ElectionStats    LatencyStats `json:"election_stats"`
}

// GetReport takes a snapshot of every metric
func (m *Metrics) GetReport() Report {
	return Report{
		Uptime:           time.Since(m.startTime).Seconds(),
		StartTime:        m.startTime,
		RequestVoteCount: m.requestVoteCount.Load(),
		VotesGranted:     m.votesGranted.Load(),
		VotesDenied:      m.votesDenied.Load(),
		ElectionCount:    m.electionCount.Load(),
		ElectionsWon:     m.electionsWon.Load(),
		ElectionsLost:    m.electionsLost.Load(),
		ElectionsSplit:   m.electionsSplit.Load(),
		UnreachablePeers: m.unreachablePeers.Load(),
		ElectionStats:    m.GetElectionStats(),
	}
}

// WriteTo prints the report in a human-readable format
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	line := strings.Repeat("=", 40)

	fmt.Fprintf(&b, "%s\nELECTION REPORT\n%s\n", line, line)
	fmt.Fprintf(&b, "Uptime: %.2f seconds (since %s)\n", r.Uptime, r.StartTime.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "\nVotes answered: %d (granted %d, denied %d)\n", r.RequestVoteCount, r.VotesGranted, r.VotesDenied)

	fmt.Fprintf(&b, "\nElections: %d (won %d, lost %d, split %d)\n",
		r.ElectionCount, r.ElectionsWon, r.ElectionsLost, r.ElectionsSplit)
	fmt.Fprintf(&b, "Unreachable peers: %d\n", r.UnreachablePeers)
	if r.ElectionStats.Count > 0 {
		fmt.Fprintf(&b, "  Avg Duration: %.3f ms\n", r.ElectionStats.Mean)
		fmt.Fprintf(&b, "  P50 Duration: %.3f ms\n", r.ElectionStats.P50)
		fmt.Fprintf(&b, "  P95 Duration: %.3f ms\n", r.ElectionStats.P95)
	}
	b.WriteString(line + "\n")

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
