package election

// VotingState is the container for the election variables defined in Figure 2 from the
// [Raft paper](https://raft.github.io/raft.pdf).
//
// It is NOT safe for concurrent use. A VotingState is owned by exactly one Node and is only ever touched from that
// Node's actor loop, which is what makes every decide-and-mutate step atomic.
type VotingState struct {
	// The role of the node as per Section 5.1 from the paper. A node starts as a Follower (Section 5.2).
	role Role
	// The latest term the node has seen. It is a [logical clock](https://dl.acm.org/doi/pdf/10.1145/359545.359563)
	// that starts at 0 and increases monotonically.
	currentTerm uint64
	// The candidate that received this node's vote in currentTerm, nil if no vote was cast yet. It is only meaningful
	// relative to currentTerm, so every change of currentTerm rewrites it in the same step.
	votedFor *NodeID
}

// NewVotingState returns a Follower at the given term. votedFor may be nil.
func NewVotingState(term uint64, votedFor *NodeID) *VotingState {
	vs := &VotingState{role: Follower, currentTerm: term}
	if votedFor != nil {
		id := *votedFor
		vs.votedFor = &id
	}
	return vs
}

func (vs *VotingState) Role() Role { return vs.role }

func (vs *VotingState) CurrentTerm() uint64 { return vs.currentTerm }

// VotedFor returns a copy of the vote cast in the current term, or nil.
func (vs *VotingState) VotedFor() *NodeID {
	if vs.votedFor == nil {
		return nil
	}
	id := *vs.votedFor
	return &id
}

// Decide answers a VoteRequest (Section 5.2 and 5.4.1, without the log up-to-date check). The order of the checks
// matters.
func (vs *VotingState) Decide(req VoteRequest) VoteResponse {
	// 1. Reply false if term < currentTerm (Section 5.1)
	if req.Term < vs.currentTerm {
		return VoteResponse{Term: vs.currentTerm, VoteGranted: false}
	}

	// 2. Same term: at most one candidate gets our vote. Re-delivery of the request from the candidate we already
	// voted for is granted again.
	if req.Term == vs.currentTerm {
		if vs.votedFor == nil {
			vs.vote(req.CandidateID)
			return VoteResponse{Term: req.Term, VoteGranted: true}
		}
		if *vs.votedFor == req.CandidateID {
			return VoteResponse{Term: req.Term, VoteGranted: true}
		}
		return VoteResponse{Term: req.Term, VoteGranted: false}
	}

	// 3. A newer term subsumes our view. Adopt it, vote for the candidate and revert to follower (Section 5.1).
	vs.currentTerm = req.Term
	vs.vote(req.CandidateID)
	vs.role = Follower
	return VoteResponse{Term: req.Term, VoteGranted: true}
}

// BeginCampaign moves to the next term as a Candidate that voted for itself, and returns the new term.
func (vs *VotingState) BeginCampaign(self NodeID) uint64 {
	vs.currentTerm++
	vs.role = Candidate
	vs.vote(self)
	return vs.currentTerm
}

// ObserveTerm applies the rule "if one server's current term is smaller than the other's, then it updates its current
// term to the larger value" (Section 5.1). It reports whether the term advanced, in which case the node is now a
// Follower with no vote cast.
func (vs *VotingState) ObserveTerm(term uint64) bool {
	if term <= vs.currentTerm {
		return false
	}
	vs.currentTerm = term
	vs.votedFor = nil
	vs.role = Follower
	return true
}

// BecomeLeader promotes a Candidate of the given term. It is a no-op returning false when the node moved on to another
// term or role while the votes were being collected.
func (vs *VotingState) BecomeLeader(term uint64) bool {
	if vs.role != Candidate || vs.currentTerm != term {
		return false
	}
	vs.role = Leader
	return true
}

func (vs *VotingState) vote(id NodeID) {
	vs.votedFor = &id
}
