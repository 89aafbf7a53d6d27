package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raft-election/internal/election"
)

func newTestJournal(t *testing.T) *BboltJournal {
	t.Helper()
	j, err := NewBboltJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	fixed := time.Unix(1700000000, 0)
	j.now = func() time.Time { return fixed }
	return j
}

func TestBboltJournal_RecordRound(t *testing.T) {
	j := newTestJournal(t)

	won := election.Outcome{RoundID: "a", Term: 2, Role: election.Leader, FinalTerm: 2, Grants: 3}
	lost := election.Outcome{RoundID: "b", Term: 2, Role: election.Follower, FinalTerm: 5, SteppedDown: true, HigherTerm: 5}
	retry := election.Outcome{RoundID: "c", Term: 3, Role: election.Candidate, FinalTerm: 3, NoResponses: 4}

	require.NoError(t, j.RecordRound(1, won))
	require.NoError(t, j.RecordRound(0, lost))
	require.NoError(t, j.RecordRound(1, retry))

	rounds, err := j.Rounds(2)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	// Ordered by node within a term
	assert.Equal(t, election.NodeID(0), rounds[0].Node)
	assert.Equal(t, lost, rounds[0].Outcome)
	assert.Equal(t, election.NodeID(1), rounds[1].Node)
	assert.Equal(t, won, rounds[1].Outcome)
	assert.True(t, rounds[1].RecordedAt.Equal(time.Unix(1700000000, 0)))

	rounds, err = j.Rounds(3)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, retry, rounds[0].Outcome)

	rounds, err = j.Rounds(4)
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestBboltJournal_RecordRound_SameTermTwice(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordRound(1, election.Outcome{RoundID: "first", Term: 7}))
	require.NoError(t, j.RecordRound(1, election.Outcome{RoundID: "second", Term: 7}))

	rounds, err := j.Rounds(7)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, "first", rounds[0].Outcome.RoundID)
	assert.Equal(t, "second", rounds[1].Outcome.RoundID)
}

func TestBboltJournal_RecordVote(t *testing.T) {
	j := newTestJournal(t)

	granted := election.VoteResponse{Term: 4, VoteGranted: true}
	require.NoError(t, j.RecordVote(2, election.VoteRequest{Term: 4, CandidateID: 1}, granted))
	require.NoError(t, j.RecordVote(3, election.VoteRequest{Term: 4, CandidateID: 1}, granted))

	t.Run("denials are not recorded", func(t *testing.T) {
		require.NoError(t, j.RecordVote(5, election.VoteRequest{Term: 4, CandidateID: 9}, election.VoteResponse{Term: 4}))
	})

	t.Run("the same vote again is accepted", func(t *testing.T) {
		require.NoError(t, j.RecordVote(2, election.VoteRequest{Term: 4, CandidateID: 1}, granted))
	})

	t.Run("a second candidate in the same term is rejected", func(t *testing.T) {
		err := j.RecordVote(2, election.VoteRequest{Term: 4, CandidateID: 3}, granted)
		assert.ErrorIs(t, err, ErrConflictingVote)
	})

	votes, err := j.Votes(4)
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, election.NodeID(2), votes[0].Voter)
	assert.Equal(t, election.NodeID(1), votes[0].Candidate)
	assert.Equal(t, uint64(4), votes[0].Term)
	assert.Equal(t, election.NodeID(3), votes[1].Voter)
}

func TestBboltJournal_LastTerm(t *testing.T) {
	j := newTestJournal(t)

	term, err := j.LastTerm()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), term)

	require.NoError(t, j.RecordRound(0, election.Outcome{Term: 300}))
	require.NoError(t, j.RecordRound(1, election.Outcome{Term: 2}))

	term, err = j.LastTerm()
	require.NoError(t, err)
	assert.Equal(t, uint64(300), term)
}

func TestBboltJournal_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewBboltJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.RecordRound(4, election.Outcome{RoundID: "kept", Term: 9}))
	require.NoError(t, j.Close())

	j, err = NewBboltJournal(path)
	require.NoError(t, err)
	defer j.Close()

	rounds, err := j.Rounds(9)
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, "kept", rounds[0].Outcome.RoundID)
}
