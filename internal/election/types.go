package election

import (
	"fmt"
	"time"

	"raft-election/internal/pubsub"
)

// NodeID is the identity of a node in the cluster. It is assigned at construction and never changes.
type NodeID int64

// String returns the string representation of the NodeID
func (id NodeID) String() string {
	return fmt.Sprintf("node-%d", id)
}

// A Role is the part a node plays in the cluster at any given point: follower, candidate, or leader
type Role uint64

// As Golang does not support Enums this is a common pattern for implementing one. Follower is the zero value, as
// every node starts its life as a Follower (Section 5.2 from the [Raft paper](https://raft.github.io/raft.pdf)).
const (
	Follower Role = iota
	Candidate
	Leader
)

// String returns the string representation of the Role
func (r Role) String() string {
	switch r {
	case Leader:
		return "Leader"
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	default:
		return "Unknown"
	}
}

// MarshalText lets a Role show up by name in JSON payloads
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Follower":
		*r = Follower
	case "Candidate":
		*r = Candidate
	case "Leader":
		*r = Leader
	default:
		return fmt.Errorf("unknown role %q", text)
	}
	return nil
}

// VoteRequest is sent by a Candidate to every peer when it campaigns for Term.
type VoteRequest struct {
	// The term the candidate is campaigning for
	Term uint64
	// The node asking for the vote
	CandidateID NodeID
}

// VoteResponse is the answer to a VoteRequest.
type VoteResponse struct {
	// The responder's term after processing the request. It may exceed the term of the request.
	Term uint64
	// True means the candidate received the vote
	VoteGranted bool
}

// Outcome reports how a single election round ended.
type Outcome struct {
	// RoundID correlates the logs, journal records and RPCs of one round
	RoundID string
	// The term the node campaigned for
	Term uint64
	// The role and term of the node once the round was applied
	Role      Role
	FinalTerm uint64
	// Peer answers, excluding the implicit self vote
	Grants      int
	Denials     int
	NoResponses int
	// SteppedDown is set when a peer answered with a higher term and the round was abandoned
	SteppedDown bool
	// HigherTerm is the term that caused the step-down, if any
	HigherTerm uint64
	// Superseded is set when the node left the campaign term on its own while the votes were being collected, for
	// example because it granted its vote to a candidate with a higher term.
	Superseded bool
	Duration   time.Duration
}

// Status is a point-in-time view of a node's VotingState
type Status struct {
	ID       NodeID  `json:"id"`
	Role     Role    `json:"role"`
	Term     uint64  `json:"term"`
	VotedFor *NodeID `json:"votedFor,omitempty"`
}

const (
	// RoleChanged is published whenever a node's role changes. The payload is a RoleChange.
	RoleChanged pubsub.EventType = iota
	// ElectionCompleted is published once an election round has been tallied. The payload is an Outcome.
	ElectionCompleted
)

// RoleChange travels with RoleChanged events.
type RoleChange struct {
	Node NodeID
	From Role
	To   Role
	Term uint64
}

// MetricsCollector is an optional interface for collecting election metrics
type MetricsCollector interface {
	RecordRequestVote()
	RecordVoteDecision(granted bool)
	RecordElection()
	RecordElectionOutcome(outcome Outcome)
	RecordElectionDuration(duration time.Duration)
	RecordUnreachablePeer()
}

// Journal is an optional append-only record of what a node did during elections. It is write-only from the point of
// view of the node: nothing in it is ever read back into the VotingState.
type Journal interface {
	RecordRound(node NodeID, outcome Outcome) error
	RecordVote(node NodeID, req VoteRequest, resp VoteResponse) error
}
