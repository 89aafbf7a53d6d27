// Package cluster loads the static membership of an election cluster from a JSON file:
//
//	{
//	  "roundTimeout": "150ms",
//	  "servers": [
//	    {"id": 0, "address": "localhost:50051", "admin": "localhost:8080"},
//	    {"id": 1, "address": "localhost:50052"}
//	  ]
//	}
package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"raft-election/internal/election"
	"raft-election/internal/election/transport"
)

var (
	ErrNoServers     = errors.New("cluster has no servers")
	ErrUnknownServer = errors.New("server not in cluster")
)

// ServerConfig is one member of the cluster
type ServerConfig struct {
	ID      election.NodeID `json:"id"`
	Address string          `json:"address"`
	// Admin is the listen address of the admin HTTP API, empty disables it
	Admin string `json:"admin,omitempty"`
}

// Config is the whole cluster. The server list is the peer list of every node, minus the node itself.
type Config struct {
	RoundTimeout Duration       `json:"roundTimeout,omitempty"`
	Servers      []ServerConfig `json:"servers"`
}

// Duration reads "150ms" style strings
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"150ms\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Load reads and validates the cluster file at path
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cluster file: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a cluster definition
func Parse(r io.Reader) (*Config, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	c := &Config{}
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("failed to decode cluster config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that ids are unique and every server has an address
func (c *Config) Validate() error {
	if len(c.Servers) == 0 {
		return ErrNoServers
	}
	if c.RoundTimeout < 0 {
		return fmt.Errorf("negative round timeout %v", time.Duration(c.RoundTimeout))
	}

	seen := make(map[election.NodeID]struct{}, len(c.Servers))
	for _, s := range c.Servers {
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("duplicate server id %d", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Address == "" {
			return fmt.Errorf("server %d has no address", s.ID)
		}
	}
	return nil
}

// Server returns the entry of id
func (c *Config) Server(id election.NodeID) (ServerConfig, error) {
	for _, s := range c.Servers {
		if s.ID == id {
			return s, nil
		}
	}
	return ServerConfig{}, fmt.Errorf("%w: %d", ErrUnknownServer, id)
}

// PeersOf returns every server except id, in file order
func (c *Config) PeersOf(id election.NodeID) []transport.PeerAddress {
	peers := make([]transport.PeerAddress, 0, len(c.Servers))
	for _, s := range c.Servers {
		if s.ID != id {
			peers = append(peers, transport.PeerAddress{ID: s.ID, Addr: s.Address})
		}
	}
	return peers
}

// Local builds a cluster of size servers on consecutive ports of localhost, starting at basePort
func Local(size, basePort int) *Config {
	c := &Config{Servers: make([]ServerConfig, 0, size)}
	for i := 0; i < size; i++ {
		c.Servers = append(c.Servers, ServerConfig{
			ID:      election.NodeID(i),
			Address: fmt.Sprintf("localhost:%d", basePort+i),
		})
	}
	return c
}
