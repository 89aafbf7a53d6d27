package election

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"raft-election/internal/pubsub"
)

// Quorum is the number of peer grants a candidate needs to become leader. The node's own vote is implicit and not
// part of the count, and the division is an integer one: 4 peers need 2 grants, 5 peers need 2, 1 peer needs 0.
//
// NOTE: this is weaker than the classic majority of Section 5.2 (floor(n/2)+1 over the whole cluster, self included)
// for even peer counts. It is kept as is on purpose, see DESIGN.md.
func Quorum(peerCount int) int {
	return peerCount / 2
}

type peerResult struct {
	peer NodeID
	resp VoteResponse
	err  error
}

// RequestVote starts an election round, as per Section 5.2 from the [Raft paper](https://raft.github.io/raft.pdf).
// It can be called in any role; deciding when to call it is up to the caller.
//
// Failures of individual peers never surface here: they are counted as no-response in the Outcome. The error is only
// non-nil when the round could not start at all, because the node was stopped or ctx ended before the actor picked
// the round up.
func (n *Node) RequestVote(ctx context.Context) (Outcome, error) {
	start := time.Now()
	roundID := uuid.NewString()

	var (
		term   uint64
		change *RoleChange
	)
	// 1. Increment currentTerm, 2. transition to Candidate, 3. vote for self. All in one step.
	err := n.do(ctx, func(vs *VotingState) {
		before := vs.Role()
		term = vs.BeginCampaign(n.id)
		change = n.roleChange(before, vs)
	})
	if err != nil {
		return Outcome{RoundID: roundID}, err
	}
	n.publishRoleChange(change)

	log := n.log.WithFields(logrus.Fields{"term": term, "round": roundID})
	log.Infof("[ELECTION] Initiated a new election with %d peers, quorum is %d", len(n.peers), Quorum(len(n.peers)))
	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordElection()
	}

	// 4. Send a RequestVote RPC to all peers in parallel. The deadline bounds the whole round, a peer that has not
	// answered by then is no-response.
	roundCtx, cancel := context.WithTimeout(WithCandidate(WithRoundID(ctx, roundID), n.id), n.cfg.RoundTimeout)
	defer cancel()

	req := VoteRequest{Term: term, CandidateID: n.id}
	// Buffered so that answers arriving after the tally finished never block their goroutine
	results := make(chan peerResult, len(n.peers))
	for _, p := range n.peers {
		go func(p Peer) {
			resp, err := p.RequestVote(roundCtx, req)
			results <- peerResult{peer: p.ID(), resp: resp, err: err}
		}(p)
	}

	outcome := n.tally(roundCtx, term, results, log)
	outcome.RoundID = roundID

	// Apply the result. This must happen even if the caller's ctx is already done, otherwise a higher term we have
	// learned about would be lost.
	err = n.do(context.WithoutCancel(ctx), func(vs *VotingState) {
		before := vs.Role()
		switch {
		case outcome.SteppedDown:
			// If a candidate or leader discovers that its term is out of date, it immediately reverts to follower
			// state (Section 5.1)
			vs.ObserveTerm(outcome.HigherTerm)
		case vs.Role() != Candidate || vs.CurrentTerm() != term:
			outcome.Superseded = true
		case outcome.Grants >= Quorum(len(n.peers)):
			vs.BecomeLeader(term)
		}
		outcome.Role = vs.Role()
		outcome.FinalTerm = vs.CurrentTerm()
		change = n.roleChange(before, vs)
	})
	outcome.Duration = time.Since(start)
	if err != nil {
		// Only possible if the node was stopped mid-round
		log.WithError(err).Warn("[ELECTION] Could not apply the election result")
		return outcome, err
	}
	n.publishRoleChange(change)
	n.report(outcome, log)

	return outcome, nil
}

// tally collects the answers of one round. It returns as soon as a peer reports a higher term, when every peer has
// been accounted for, or when the round deadline expires.
func (n *Node) tally(ctx context.Context, term uint64, results <-chan peerResult, log *logrus.Entry) Outcome {
	outcome := Outcome{Term: term}

	for pending := len(n.peers); pending > 0; {
		select {
		case r := <-results:
			pending--
			if r.err != nil {
				// Unreachable peers are neither a grant nor a deny
				outcome.NoResponses++
				log.WithField("peer", r.peer).Infof("[ELECTION] No response from peer: %v", r.err)
				if n.cfg.Metrics != nil {
					n.cfg.Metrics.RecordUnreachablePeer()
				}
				continue
			}

			// If one server's current term is smaller than the other's (Section 5.1). The first such answer wins,
			// whatever is still in flight is discarded.
			if r.resp.Term > term {
				outcome.SteppedDown = true
				outcome.HigherTerm = r.resp.Term
				log.WithField("peer", r.peer).Infof("[ELECTION] Peer is at term %d, abandoning the election", r.resp.Term)
				return outcome
			}

			if r.resp.VoteGranted {
				outcome.Grants++
			} else {
				outcome.Denials++
			}
		case <-ctx.Done():
			outcome.NoResponses += pending
			log.Infof("[ELECTION] %d peers did not answer before the round ended: %v", pending, ctx.Err())
			if n.cfg.Metrics != nil {
				for i := 0; i < pending; i++ {
					n.cfg.Metrics.RecordUnreachablePeer()
				}
			}
			return outcome
		}
	}

	return outcome
}

func (n *Node) report(outcome Outcome, log *logrus.Entry) {
	log = log.WithFields(logrus.Fields{
		"grants":      outcome.Grants,
		"denials":     outcome.Denials,
		"noResponses": outcome.NoResponses,
		"duration":    outcome.Duration,
	})
	switch {
	case outcome.Role == Leader:
		log.Info("[ELECTION] Won the election")
	case outcome.SteppedDown:
		log.Infof("[ELECTION] Lost the election to term %d", outcome.HigherTerm)
	case outcome.Superseded:
		log.Infof("[ELECTION] Left term %d while the election was running", outcome.Term)
	default:
		// The caller decides if and when to retry
		log.Info("[ELECTION] Neither won, nor lost the election")
	}

	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordElectionOutcome(outcome)
		n.cfg.Metrics.RecordElectionDuration(outcome.Duration)
	}
	if n.cfg.Journal != nil {
		if err := n.cfg.Journal.RecordRound(n.id, outcome); err != nil {
			log.WithError(err).Warn("[JOURNAL] Failed to record election round")
		}
	}
	if n.cfg.PubSub != nil {
		pubsub.Publish(n.cfg.PubSub, pubsub.NewEvent(ElectionCompleted, outcome))
	}
}
