package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"

	"raft-election/internal/election"
	"raft-election/internal/election/metrics"
)

var (
	title = color.New(color.FgCyan, color.Bold)
	pass  = color.New(color.FgGreen)
	fail  = color.New(color.FgRed, color.Bold)
	dim   = color.New(color.Faint)
)

// scenario builds a cluster, runs one election from node 0 and checks the result
type scenario struct {
	name   string
	about  string
	run    func(cfg election.Config) (election.Outcome, *election.Node, func())
	expect func(o election.Outcome, st election.Status) error
}

func main() {
	roundTimeout := flag.Duration("round-timeout", election.DefaultRoundTimeout, "Deadline of an election round")
	verbose := flag.Bool("v", false, "Show node logs")
	flag.Parse()

	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	m := metrics.NewMetrics()
	cfg := election.Config{RoundTimeout: *roundTimeout, Logger: logger, Metrics: m}

	title.Println("========================================")
	title.Println("Raft Leader Election Demo (Section 5.2)")
	title.Println("========================================")
	fmt.Println()

	failed := 0
	for i, sc := range scenarios() {
		title.Printf("[%d] %s\n", i+1, sc.name)
		dim.Printf("    %s\n", sc.about)

		outcome, candidate, cleanup := sc.run(cfg)
		st, err := candidate.Status(context.Background())
		cleanup()
		if err == nil {
			err = sc.expect(outcome, st)
		}

		fmt.Printf("    round %s: %s at term %d, %d granted, %d denied, %d silent, took %v\n",
			outcome.RoundID[:8], outcome.Role, outcome.FinalTerm, outcome.Grants, outcome.Denials,
			outcome.NoResponses, outcome.Duration.Round(time.Millisecond))
		if err != nil {
			failed++
			fail.Printf("    ✗ %v\n\n", err)
			continue
		}
		pass.Print("    ✓ as expected\n\n")
	}

	_, _ = m.GetReport().WriteTo(os.Stdout)

	if failed > 0 {
		fail.Printf("%d scenario(s) failed\n", failed)
		os.Exit(1)
	}
	pass.Println("All scenarios passed")
}

func scenarios() []scenario {
	return []scenario{
		{
			name:  "Fresh cluster",
			about: "node 0 campaigns against 4 peers that have never voted",
			run: func(cfg election.Config) (election.Outcome, *election.Node, func()) {
				_, nodes := newCluster(5, cfg, nil)
				return campaign(nodes[0]), nodes[0], stopAll(nodes)
			},
			expect: func(o election.Outcome, st election.Status) error {
				if st.Role != election.Leader || st.Term != 1 || o.Grants != 4 {
					return fmt.Errorf("expected Leader at term 1 with 4 grants, got %v at term %d with %d", st.Role, st.Term, o.Grants)
				}
				return nil
			},
		},
		{
			name:  "Peer ahead in term",
			about: "node 2 is at term 42 and already voted for node 7",
			run: func(cfg election.Config) (election.Outcome, *election.Node, func()) {
				other := election.NodeID(7)
				_, nodes := newCluster(5, cfg, func(id election.NodeID, c *election.Config) {
					if id == 2 {
						c.InitialTerm = 42
						c.InitialVotedFor = &other
					}
				})
				return campaign(nodes[0]), nodes[0], stopAll(nodes)
			},
			expect: func(o election.Outcome, st election.Status) error {
				if !o.SteppedDown || st.Role != election.Follower || st.Term != 42 {
					return fmt.Errorf("expected to step down to Follower at term 42, got %v at term %d", st.Role, st.Term)
				}
				return nil
			},
		},
		{
			name:  "Silent peer",
			about: "node 4 accepts the request and never answers",
			run: func(cfg election.Config) (election.Outcome, *election.Node, func()) {
				dir, nodes := newCluster(4, cfg, nil)
				release := make(chan struct{})
				dir.Register(4, silent(release))

				candidate := election.NewNode(0, dir.Peers(1, 2, 3, 4), cfg)
				dir.Register(0, candidate)
				// Node 0 of newCluster is replaced by the candidate above
				nodes[0].Stop()

				outcome := campaign(candidate)
				return outcome, candidate, func() {
					close(release)
					candidate.Stop()
					stopAll(nodes)()
				}
			},
			expect: func(o election.Outcome, st election.Status) error {
				if o.NoResponses != 1 || st.Role != election.Leader {
					return fmt.Errorf("expected Leader with 1 silent peer, got %v with %d", st.Role, o.NoResponses)
				}
				return nil
			},
		},
	}
}

// newCluster registers size nodes in a fresh Directory, each peering with all the others
func newCluster(size int, cfg election.Config, tweak func(id election.NodeID, c *election.Config)) (*election.Directory, []*election.Node) {
	dir := election.NewDirectory()
	nodes := make([]*election.Node, 0, size)
	for i := 0; i < size; i++ {
		id := election.NodeID(i)
		peers := make([]election.NodeID, 0, size-1)
		for j := 0; j < size; j++ {
			if j != i {
				peers = append(peers, election.NodeID(j))
			}
		}

		c := cfg
		if tweak != nil {
			tweak(id, &c)
		}
		n := election.NewNode(id, dir.Peers(peers...), c)
		dir.Register(id, n)
		nodes = append(nodes, n)
	}
	return dir, nodes
}

func campaign(n *election.Node) election.Outcome {
	outcome, err := n.RequestVote(context.Background())
	if err != nil {
		log.Fatalf("Election could not start: %v", err)
	}
	return outcome
}

func stopAll(nodes []*election.Node) func() {
	return func() {
		for _, n := range nodes {
			n.Stop()
		}
	}
}

// silent never answers until release is closed, whatever the caller's deadline
type silent chan struct{}

func (s silent) HandleVoteRequest(_ context.Context, req election.VoteRequest) (election.VoteResponse, error) {
	<-s
	return election.VoteResponse{Term: req.Term}, nil
}
