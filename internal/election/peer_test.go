package election

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, req VoteRequest) (VoteResponse, error)

func (f handlerFunc) HandleVoteRequest(ctx context.Context, req VoteRequest) (VoteResponse, error) {
	return f(ctx, req)
}

func TestDirectory_Peers(t *testing.T) {
	dir := NewDirectory()
	peers := dir.Peers(3, 1, 2)

	require.Len(t, peers, 3)
	assert.Equal(t, NodeID(3), peers[0].ID())
	assert.Equal(t, NodeID(1), peers[1].ID())
	assert.Equal(t, NodeID(2), peers[2].ID())
}

func TestLocalPeer_RequestVote(t *testing.T) {
	dir := NewDirectory()
	peer := dir.Peers(1)[0]

	t.Run("unknown peer", func(t *testing.T) {
		_, err := peer.RequestVote(context.Background(), VoteRequest{Term: 1, CandidateID: 0})
		assert.ErrorIs(t, err, ErrUnknownPeer)
	})

	t.Run("registered after the peer was created", func(t *testing.T) {
		var got VoteRequest
		dir.Register(1, handlerFunc(func(_ context.Context, req VoteRequest) (VoteResponse, error) {
			got = req
			return VoteResponse{Term: req.Term, VoteGranted: true}, nil
		}))

		resp, err := peer.RequestVote(context.Background(), VoteRequest{Term: 2, CandidateID: 0})
		require.NoError(t, err)
		assert.True(t, resp.VoteGranted)
		assert.Equal(t, VoteRequest{Term: 2, CandidateID: 0}, got)
	})

	t.Run("unregistered", func(t *testing.T) {
		dir.Unregister(1)
		_, err := peer.RequestVote(context.Background(), VoteRequest{Term: 3, CandidateID: 0})
		assert.ErrorIs(t, err, ErrUnknownPeer)
	})
}

func TestContext(t *testing.T) {
	ctx := context.Background()

	_, ok := RoundIDFromContext(ctx)
	assert.False(t, ok)
	_, ok = CandidateFromContext(ctx)
	assert.False(t, ok)

	ctx = WithCandidate(WithRoundID(ctx, "round-1"), 4)

	roundID, ok := RoundIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "round-1", roundID)

	candidate, ok := CandidateFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, NodeID(4), candidate)
}
