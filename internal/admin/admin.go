// Package admin serves a small JSON API to inspect a node and trigger elections by hand.
//
//	GET  /api/status               role, term and vote of the node
//	POST /api/campaign             run one election round and return its outcome
//	GET  /api/metrics              metrics report, ?format=text for the human-readable form
//	GET  /api/journal              highest term with a recorded round
//	GET  /api/journal/{term}       rounds and votes recorded for a term
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"raft-election/internal/election"
	"raft-election/internal/election/metrics"
	"raft-election/internal/election/wire"
)

// Elector is the part of *election.Node the API needs
type Elector interface {
	Status(ctx context.Context) (election.Status, error)
	RequestVote(ctx context.Context) (election.Outcome, error)
}

// Reporter produces a metrics snapshot. *metrics.Metrics implements it.
type Reporter interface {
	GetReport() metrics.Report
}

// JournalReader is the read side of the election journal. *journal.BboltJournal implements it.
type JournalReader interface {
	Rounds(term uint64) ([]wire.RoundRecord, error)
	Votes(term uint64) ([]wire.VoteRecord, error)
	LastTerm() (uint64, error)
}

// API holds the collaborators of the handlers. Metrics and Journal are optional, their routes answer 404 when unset.
type API struct {
	node    Elector
	metrics Reporter
	journal JournalReader
}

func NewAPI(node Elector, reporter Reporter, journal JournalReader) *API {
	return &API{node: node, metrics: reporter, journal: journal}
}

// Handler returns the router of the API
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	sr := r.PathPrefix("/api").Subrouter()
	sr.Path("/status").Methods(http.MethodGet).HandlerFunc(a.status)
	sr.Path("/campaign").Methods(http.MethodPost).HandlerFunc(a.campaign)
	sr.Path("/metrics").Methods(http.MethodGet).HandlerFunc(a.report)
	sr.Path("/journal").Methods(http.MethodGet).HandlerFunc(a.lastTerm)
	sr.Path("/journal/{term:[0-9]+}").Methods(http.MethodGet).HandlerFunc(a.journalTerm)
	return r
}

// OutcomeResponse is the JSON form of election.Outcome
type OutcomeResponse struct {
	RoundID     string        `json:"roundId"`
	Term        uint64        `json:"term"`
	Role        election.Role `json:"role"`
	FinalTerm   uint64        `json:"finalTerm"`
	Grants      int           `json:"grants"`
	Denials     int           `json:"denials"`
	NoResponses int           `json:"noResponses"`
	SteppedDown bool          `json:"steppedDown"`
	HigherTerm  uint64        `json:"higherTerm,omitempty"`
	Superseded  bool          `json:"superseded"`
	DurationMs  float64       `json:"durationMs"`
}

func NewOutcomeResponse(o election.Outcome) OutcomeResponse {
	return OutcomeResponse{
		RoundID:     o.RoundID,
		Term:        o.Term,
		Role:        o.Role,
		FinalTerm:   o.FinalTerm,
		Grants:      o.Grants,
		Denials:     o.Denials,
		NoResponses: o.NoResponses,
		SteppedDown: o.SteppedDown,
		HigherTerm:  o.HigherTerm,
		Superseded:  o.Superseded,
		DurationMs:  float64(o.Duration.Microseconds()) / 1000,
	}
}

// JournalResponse lists what was recorded for one term
type JournalResponse struct {
	Term   uint64          `json:"term"`
	Rounds []RoundResponse `json:"rounds"`
	Votes  []VoteResponse  `json:"votes"`
}

type RoundResponse struct {
	Node       election.NodeID `json:"node"`
	RecordedAt string          `json:"recordedAt"`
	OutcomeResponse
}

type VoteResponse struct {
	Voter      election.NodeID `json:"voter"`
	Candidate  election.NodeID `json:"candidate"`
	RecordedAt string          `json:"recordedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	st, err := a.node.Status(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) campaign(w http.ResponseWriter, r *http.Request) {
	outcome, err := a.node.RequestVote(r.Context())
	if err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewOutcomeResponse(outcome))
}

func (a *API) report(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}

	report := a.metrics.GetReport()
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if _, err := report.WriteTo(w); err != nil {
			log.Warnf("[ADMIN] Failed to write metrics report: %v", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) lastTerm(w http.ResponseWriter, _ *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	term, err := a.journal.LastTerm()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"lastTerm": term})
}

func (a *API) journalTerm(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusNotFound, "journal is disabled")
		return
	}

	term, err := strconv.ParseUint(mux.Vars(r)["term"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid term")
		return
	}

	rounds, err := a.journal.Rounds(term)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	votes, err := a.journal.Votes(term)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := JournalResponse{
		Term:   term,
		Rounds: make([]RoundResponse, 0, len(rounds)),
		Votes:  make([]VoteResponse, 0, len(votes)),
	}
	for _, rec := range rounds {
		resp.Rounds = append(resp.Rounds, RoundResponse{
			Node:            rec.Node,
			RecordedAt:      rec.RecordedAt.UTC().Format(timeFormat),
			OutcomeResponse: NewOutcomeResponse(rec.Outcome),
		})
	}
	for _, rec := range votes {
		resp.Votes = append(resp.Votes, VoteResponse{
			Voter:      rec.Voter,
			Candidate:  rec.Candidate,
			RecordedAt: rec.RecordedAt.UTC().Format(timeFormat),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func writeNodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, election.ErrNodeStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("[ADMIN] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
