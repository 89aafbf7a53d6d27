package election

import (
	"time"

	"github.com/sirupsen/logrus"

	"raft-election/internal/pubsub"
)

const (
	// DefaultRoundTimeout bounds a whole election round. It matches the lower end of the 150-300ms election timeout
	// range recommended at the end of Section 9.3 from the [Raft paper](https://raft.github.io/raft.pdf), so a round
	// always ends before a follower would give up on it.
	DefaultRoundTimeout = 150 * time.Millisecond

	// DefaultMailboxSize is the number of commands that can queue up for a node's actor loop before callers block.
	DefaultMailboxSize = 64
)

// Config holds everything a Node needs apart from its identity and peers. Zero values are replaced by defaults in
// NewNode, so a literal Config{} is valid.
type Config struct {
	// RoundTimeout is the deadline of a single election round. Peers that did not answer in time count as no-response.
	RoundTimeout time.Duration
	// MailboxSize is the buffer of the actor's command channel
	MailboxSize int

	// InitialTerm and InitialVotedFor seed the VotingState. They exist for tests and demos that need a node which
	// has already taken part in earlier elections.
	InitialTerm     uint64
	InitialVotedFor *NodeID

	// Logger is used for all node output. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
	// Optional collaborators, nil disables them
	Metrics MetricsCollector
	Journal Journal
	PubSub  *pubsub.PubSubClient
}

// DefaultConfig returns the configuration used when nothing else is specified
func DefaultConfig() Config {
	return Config{
		RoundTimeout: DefaultRoundTimeout,
		MailboxSize:  DefaultMailboxSize,
		Logger:       logrus.StandardLogger(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = def.RoundTimeout
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = def.MailboxSize
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	return c
}
