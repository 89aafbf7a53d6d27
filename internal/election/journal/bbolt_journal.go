package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"raft-election/internal/election"
	"raft-election/internal/election/wire"
)

var (
	// Bucket names
	roundsBucket = []byte("rounds")
	votesBucket  = []byte("votes")

	// ErrConflictingVote means a voter was recorded granting two different candidates in the same term. The node
	// makes this impossible, so seeing it points at a bug or at two nodes sharing an id.
	ErrConflictingVote = errors.New("conflicting vote for term")
)

// BboltJournal is an append-only audit trail of election rounds and granted votes stored in a bbolt file. Several
// nodes may share one journal, every key carries the node id.
//
// Keys are big-endian so that a cursor walks them in term order:
//
//	rounds: term | node | sequence
//	votes:  term | voter
type BboltJournal struct {
	conn *bbolt.DB
	now  func() time.Time
}

var _ election.Journal = (*BboltJournal)(nil)

// NewBboltJournal opens (or creates) the journal at path
func NewBboltJournal(path string) (*BboltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(roundsBucket); err != nil {
			return fmt.Errorf("failed to create rounds bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(votesBucket); err != nil {
			return fmt.Errorf("failed to create votes bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BboltJournal{conn: db, now: time.Now}, nil
}

// RecordRound appends the outcome of an election round run by node
func (j *BboltJournal) RecordRound(node election.NodeID, outcome election.Outcome) error {
	rec := &wire.RoundRecord{Node: node, Outcome: outcome, RecordedAt: j.now()}
	data, err := rec.MarshalWire()
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	return j.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(roundsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := append(termNodeKey(outcome.Term, node), uint64ToBytes(seq)...)
		return bucket.Put(key, data)
	})
}

// RecordVote stores a granted vote. Re-recording the same vote is a no-op apart from the timestamp.
func (j *BboltJournal) RecordVote(node election.NodeID, req election.VoteRequest, resp election.VoteResponse) error {
	if !resp.VoteGranted {
		return nil
	}

	rec := &wire.VoteRecord{Voter: node, Candidate: req.CandidateID, Term: req.Term, RecordedAt: j.now()}
	data, err := rec.MarshalWire()
	if err != nil {
		return fmt.Errorf("failed to marshal vote record: %w", err)
	}

	return j.conn.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(votesBucket)
		key := termNodeKey(req.Term, node)

		if existing := bucket.Get(key); existing != nil {
			var prev wire.VoteRecord
			if err := prev.UnmarshalWire(existing); err != nil {
				return fmt.Errorf("failed to unmarshal vote record: %w", err)
			}
			if prev.Candidate != req.CandidateID {
				return fmt.Errorf("%w %d: %v voted for %v, now %v", ErrConflictingVote, req.Term, node, prev.Candidate, req.CandidateID)
			}
		}
		return bucket.Put(key, data)
	})
}

// Rounds returns every round recorded for a term, ordered by node and then by insertion
func (j *BboltJournal) Rounds(term uint64) ([]wire.RoundRecord, error) {
	var records []wire.RoundRecord
	err := j.scanTerm(roundsBucket, term, func(v []byte) error {
		var rec wire.RoundRecord
		if err := rec.UnmarshalWire(v); err != nil {
			return fmt.Errorf("failed to unmarshal round record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// Votes returns every vote granted in a term, ordered by voter
func (j *BboltJournal) Votes(term uint64) ([]wire.VoteRecord, error) {
	var records []wire.VoteRecord
	err := j.scanTerm(votesBucket, term, func(v []byte) error {
		var rec wire.VoteRecord
		if err := rec.UnmarshalWire(v); err != nil {
			return fmt.Errorf("failed to unmarshal vote record: %w", err)
		}
		records = append(records, rec)
		return nil
	})
	return records, err
}

// LastTerm returns the highest term with at least one recorded round, 0 if the journal is empty
func (j *BboltJournal) LastTerm() (uint64, error) {
	var term uint64
	err := j.conn.View(func(tx *bbolt.Tx) error {
		k, _ := tx.Bucket(roundsBucket).Cursor().Last()
		if k != nil {
			term = binary.BigEndian.Uint64(k[:8])
		}
		return nil
	})
	return term, err
}

// Close closes the underlying database
func (j *BboltJournal) Close() error {
	return j.conn.Close()
}

func (j *BboltJournal) scanTerm(bucketName []byte, term uint64, fn func(v []byte) error) error {
	prefix := uint64ToBytes(term)
	return j.conn.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func termNodeKey(term uint64, node election.NodeID) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], term)
	binary.BigEndian.PutUint64(key[8:], uint64(node))
	return key
}

// uint64ToBytes converts a uint64 to a big-endian byte slice
func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
