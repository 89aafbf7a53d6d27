package election

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownPeer is returned by a LocalPeer whose node is not registered in the Directory, which is how an in-process
// cluster models a crashed or partitioned node.
var ErrUnknownPeer = errors.New("peer not registered")

// Peer is anything that can evaluate a VoteRequest on behalf of another node and return its VoteResponse. An error
// means no response was obtained, it is never a denial.
type Peer interface {
	ID() NodeID
	RequestVote(ctx context.Context, req VoteRequest) (VoteResponse, error)
}

// VoteHandler is the receiving side of a Peer. *Node implements it.
type VoteHandler interface {
	HandleVoteRequest(ctx context.Context, req VoteRequest) (VoteResponse, error)
}

// Directory is an in-process registry NodeID -> VoteHandler. It lets a set of nodes that live in the same process
// address each other before all of them exist, as the lookup happens on every call.
type Directory struct {
	mu       sync.RWMutex
	handlers map[NodeID]VoteHandler
}

func NewDirectory() *Directory {
	return &Directory{handlers: make(map[NodeID]VoteHandler)}
}

// Register sets or replaces the handler for an id
func (d *Directory) Register(id NodeID, h VoteHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
}

// Unregister removes the handler for an id. Calls to that id fail with ErrUnknownPeer afterwards.
func (d *Directory) Unregister(id NodeID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, id)
}

func (d *Directory) lookup(id NodeID) (VoteHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[id]
	return h, ok
}

// Peers returns one LocalPeer per id, in the given order
func (d *Directory) Peers(ids ...NodeID) []Peer {
	peers := make([]Peer, 0, len(ids))
	for _, id := range ids {
		peers = append(peers, &LocalPeer{id: id, dir: d})
	}
	return peers
}

// LocalPeer reaches a node registered in a Directory with a plain function call.
type LocalPeer struct {
	id  NodeID
	dir *Directory
}

func (p *LocalPeer) ID() NodeID { return p.id }

func (p *LocalPeer) RequestVote(ctx context.Context, req VoteRequest) (VoteResponse, error) {
	h, ok := p.dir.lookup(p.id)
	if !ok {
		return VoteResponse{}, fmt.Errorf("%w: %v", ErrUnknownPeer, p.id)
	}
	return h.HandleVoteRequest(ctx, req)
}
