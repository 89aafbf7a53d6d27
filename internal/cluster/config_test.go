package cluster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raft-election/internal/election"
	"raft-election/internal/election/transport"
)

const threeServers = `{
  "roundTimeout": "200ms",
  "servers": [
    {"id": 0, "address": "localhost:50051", "admin": "localhost:8080"},
    {"id": 1, "address": "localhost:50052"},
    {"id": 2, "address": "localhost:50053"}
  ]
}`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(threeServers))
	require.NoError(t, err)

	assert.Equal(t, 200*time.Millisecond, time.Duration(c.RoundTimeout))
	require.Len(t, c.Servers, 3)
	assert.Equal(t, "localhost:8080", c.Servers[0].Admin)
	assert.Empty(t, c.Servers[1].Admin)

	self, err := c.Server(1)
	require.NoError(t, err)
	assert.Equal(t, "localhost:50052", self.Address)

	_, err = c.Server(7)
	assert.ErrorIs(t, err, ErrUnknownServer)

	assert.Equal(t, []transport.PeerAddress{
		{ID: 0, Addr: "localhost:50051"},
		{ID: 2, Addr: "localhost:50053"},
	}, c.PeersOf(1))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: `servers: []`},
		{name: "no servers", input: `{"servers": []}`},
		{name: "duplicate id", input: `{"servers": [{"id": 1, "address": "a"}, {"id": 1, "address": "b"}]}`},
		{name: "missing address", input: `{"servers": [{"id": 1}]}`},
		{name: "unknown field", input: `{"servers": [{"id": 1, "address": "a"}], "leader": 1}`},
		{name: "numeric duration", input: `{"roundTimeout": 150, "servers": [{"id": 1, "address": "a"}]}`},
		{name: "bad duration", input: `{"roundTimeout": "soon", "servers": [{"id": 1, "address": "a"}]}`},
		{name: "negative duration", input: `{"roundTimeout": "-1s", "servers": [{"id": 1, "address": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}

	_, err := Parse(strings.NewReader(`{"servers": []}`))
	assert.ErrorIs(t, err, ErrNoServers)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster.json")
	require.NoError(t, os.WriteFile(path, []byte(threeServers), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Servers, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLocal(t *testing.T) {
	c := Local(3, 6000)
	require.NoError(t, c.Validate())

	assert.Equal(t, election.NodeID(2), c.Servers[2].ID)
	assert.Equal(t, "localhost:6002", c.Servers[2].Address)
	assert.Len(t, c.PeersOf(0), 2)
}

func TestDuration_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Duration(150 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, `"150ms"`, string(b))
}
