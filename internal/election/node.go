package election

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"raft-election/internal/pubsub"
)

// ErrNodeStopped is returned by every operation on a Node after Stop has been called.
var ErrNodeStopped = errors.New("node stopped")

// command is a unit of work executed on the actor loop. It receives the VotingState, which nothing else may touch.
type command func(vs *VotingState)

// Node is a single member of the cluster. It owns one VotingState and serializes every access to it through a
// single goroutine (the actor loop). Vote requests from peers and election rounds triggered locally are both turned
// into commands, so no two decisions ever interleave.
type Node struct {
	// The identity of the node in the cluster
	id NodeID
	// The peers of the node, fixed at construction. The node itself is not part of this list.
	peers []Peer

	cfg Config
	log *logrus.Entry

	// state is owned by run(). Never read or write it from any other goroutine.
	state *VotingState

	mailbox  chan command
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNode creates a Follower and starts its actor loop. The peers slice is copied, later changes to it are not seen
// by the node.
func NewNode(id NodeID, peers []Peer, cfg Config) *Node {
	cfg = cfg.withDefaults()

	ps := make([]Peer, len(peers))
	copy(ps, peers)

	// https://go.dev/doc/effective_go#composite_literals
	n := &Node{
		id:      id,
		peers:   ps,
		cfg:     cfg,
		log:     cfg.Logger.WithField("node", id),
		state:   NewVotingState(cfg.InitialTerm, cfg.InitialVotedFor),
		mailbox: make(chan command, cfg.MailboxSize),
		done:    make(chan struct{}),
	}

	n.wg.Add(1)
	go n.run()

	return n
}

func (n *Node) ID() NodeID { return n.id }

// Peers returns a copy of the node's peers
func (n *Node) Peers() []Peer {
	ps := make([]Peer, len(n.peers))
	copy(ps, n.peers)
	return ps
}

func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case cmd := <-n.mailbox:
			cmd(n.state)
		case <-n.done:
			return
		}
	}
}

// do runs fn on the actor loop and waits until it has been executed. A nil error means fn ran, any error means it did
// not: a command whose ctx ended while it was queued is skipped by the loop.
func (n *Node) do(ctx context.Context, fn command) error {
	finished := make(chan error, 1)
	cmd := func(vs *VotingState) {
		if err := ctx.Err(); err != nil {
			finished <- err
			return
		}
		fn(vs)
		finished <- nil
	}

	select {
	case n.mailbox <- cmd:
	case <-n.done:
		return ErrNodeStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once queued, only the loop decides whether fn runs
	select {
	case err := <-finished:
		return err
	case <-n.done:
		// The loop may be running the command right now, or may have run it right before exiting
		n.wg.Wait()
		select {
		case err := <-finished:
			return err
		default:
			return ErrNodeStopped
		}
	}
}

// HandleVoteRequest decides on a vote request from a candidate. Concurrent calls are serialized by the actor loop.
func (n *Node) HandleVoteRequest(ctx context.Context, req VoteRequest) (VoteResponse, error) {
	var (
		resp   VoteResponse
		change *RoleChange
	)
	err := n.do(ctx, func(vs *VotingState) {
		before := vs.Role()
		resp = vs.Decide(req)
		change = n.roleChange(before, vs)
	})
	if err != nil {
		return VoteResponse{}, err
	}

	fields := logrus.Fields{"candidate": req.CandidateID, "term": req.Term, "granted": resp.VoteGranted}
	if roundID, ok := RoundIDFromContext(ctx); ok {
		fields["round"] = roundID
	}
	if sender, ok := CandidateFromContext(ctx); ok && sender != req.CandidateID {
		n.log.WithFields(fields).Warnf("[ELECTION] Vote request for candidate %v was sent by node %v", req.CandidateID, sender)
	}
	n.log.WithFields(fields).Debugf("[ELECTION] Answered vote request with term %d", resp.Term)

	if n.cfg.Metrics != nil {
		n.cfg.Metrics.RecordRequestVote()
		n.cfg.Metrics.RecordVoteDecision(resp.VoteGranted)
	}
	if resp.VoteGranted && n.cfg.Journal != nil {
		if err := n.cfg.Journal.RecordVote(n.id, req, resp); err != nil {
			n.log.WithError(err).Warn("[JOURNAL] Failed to record granted vote")
		}
	}
	n.publishRoleChange(change)

	return resp, nil
}

// Status returns a snapshot of the VotingState
func (n *Node) Status(ctx context.Context) (Status, error) {
	var st Status
	err := n.do(ctx, func(vs *VotingState) {
		st = Status{ID: n.id, Role: vs.Role(), Term: vs.CurrentTerm(), VotedFor: vs.VotedFor()}
	})
	return st, err
}

// Stop terminates the actor loop and waits for it to exit. It is safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
		n.log.Info("[ELECTION] Node stopped")
	})
}

// roleChange must be called from inside a command
func (n *Node) roleChange(before Role, vs *VotingState) *RoleChange {
	if before == vs.Role() {
		return nil
	}
	return &RoleChange{Node: n.id, From: before, To: vs.Role(), Term: vs.CurrentTerm()}
}

func (n *Node) publishRoleChange(change *RoleChange) {
	if change == nil {
		return
	}
	n.log.WithField("term", change.Term).Infof("[ELECTION] %v -> %v", change.From, change.To)
	if n.cfg.PubSub != nil {
		pubsub.Publish(n.cfg.PubSub, pubsub.NewEvent(RoleChanged, *change))
	}
}
