package election

import (
	"context"

	"raft-election/internal"
)

var (
	roundIDKey   = internal.NewCtxKey[string]("roundID")
	candidateKey = internal.NewCtxKey[NodeID]("candidateID")
)

// WithRoundID attaches the id of the election round a request belongs to
func WithRoundID(ctx context.Context, id string) context.Context {
	return internal.SetCtxKey(ctx, roundIDKey, id)
}

func RoundIDFromContext(ctx context.Context) (string, bool) {
	return internal.GetCtxKey(ctx, roundIDKey)
}

func WithCandidate(ctx context.Context, id NodeID) context.Context {
	return internal.SetCtxKey(ctx, candidateKey, id)
}

func CandidateFromContext(ctx context.Context) (NodeID, bool) {
	return internal.GetCtxKey(ctx, candidateKey)
}
