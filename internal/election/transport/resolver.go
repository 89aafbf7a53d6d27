package transport

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc/resolver"

	"raft-election/internal/election"
)

// Scheme is the gRPC resolver scheme of node ids. "election:///3" resolves to the address registered for node 3.
const Scheme = "election"

// Target returns the dial target of a node
func Target(id election.NodeID) string {
	return fmt.Sprintf("%s:///%d", Scheme, id)
}

// Registry maps NodeIDs to network addresses and serves them to gRPC as a resolver.Builder. Connections are dialed by
// id, so an address can change without touching the connection pool.
type Registry struct {
	mu       sync.RWMutex
	records  map[election.NodeID]string
	watchers map[election.NodeID]map[*idResolver]struct{}
}

var _ resolver.Builder = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		records:  make(map[election.NodeID]string),
		watchers: make(map[election.NodeID]map[*idResolver]struct{}),
	}
}

// Register sets or updates the address of a node and notifies the resolvers watching it.
func (r *Registry) Register(id election.NodeID, addr string) {
	r.mu.Lock()
	r.records[id] = addr
	watchers := make([]*idResolver, 0, len(r.watchers[id]))
	for w := range r.watchers[id] {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	// Notify after unlocking to avoid re-entrancy
	for _, w := range watchers {
		w.pushCurrent()
	}
}

// Lookup returns the address registered for id
func (r *Registry) Lookup(id election.NodeID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.records[id]
	return addr, ok
}

func (r *Registry) Scheme() string { return Scheme }

func (r *Registry) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	// Accept "election:///3" and "election://cluster/3"
	endpoint := strings.TrimPrefix(target.Endpoint(), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("election resolver: empty target endpoint: %+v", target)
	}
	raw, err := strconv.ParseInt(endpoint, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("election resolver: endpoint %q is not a node id: %w", endpoint, err)
	}

	res := &idResolver{id: election.NodeID(raw), cc: cc, registry: r}
	r.watch(res)
	res.pushCurrent()
	return res, nil
}

func (r *Registry) watch(res *idResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.watchers[res.id]
	if set == nil {
		set = make(map[*idResolver]struct{})
		r.watchers[res.id] = set
	}
	set[res] = struct{}{}
}

func (r *Registry) unwatch(res *idResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.watchers[res.id]; ok {
		delete(set, res)
		if len(set) == 0 {
			delete(r.watchers, res.id)
		}
	}
}

type idResolver struct {
	id       election.NodeID
	cc       resolver.ClientConn
	registry *Registry
}

func (r *idResolver) ResolveNow(resolver.ResolveNowOptions) { r.pushCurrent() }

func (r *idResolver) Close() { r.registry.unwatch(r) }

func (r *idResolver) pushCurrent() {
	addr, ok := r.registry.Lookup(r.id)
	if !ok || addr == "" {
		// No address yet, gRPC will retry
		_ = r.cc.UpdateState(resolver.State{Addresses: nil})
		return
	}

	_ = r.cc.UpdateState(resolver.State{
		Addresses: []resolver.Address{{Addr: addr}},
	})
}
