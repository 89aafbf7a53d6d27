// Package wire encodes election messages in the protocol buffers wire format. The layout is the one protoc would
// generate for the messages below, so any protobuf implementation can talk to a node:
//
//	message VoteRequest  { uint64 term = 1; sint64 candidate_id = 2; }
//	message VoteResponse { uint64 term = 1; bool vote_granted = 2; }
//	message RoundRecord  { sint64 node = 1; string round_id = 2; uint64 term = 3; uint64 final_term = 4;
//	                       uint32 role = 5; uint32 grants = 6; uint32 denials = 7; uint32 no_responses = 8;
//	                       bool stepped_down = 9; uint64 higher_term = 10; bool superseded = 11;
//	                       int64 duration_ns = 12; int64 recorded_at_unix_ns = 13; }
//	message VoteRecord   { sint64 voter = 1; sint64 candidate = 2; uint64 term = 3; int64 recorded_at_unix_ns = 4; }
//
// Unknown fields are skipped on decode.
package wire

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"raft-election/internal/election"
)

// ErrMalformed is returned when a buffer is not a valid encoding of the requested message
var ErrMalformed = errors.New("malformed message")

// Message is implemented by every type of this package
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(b []byte) error
}

// VoteRequest is the wire form of election.VoteRequest. Convert with wire.VoteRequest(req).
type VoteRequest election.VoteRequest

// VoteResponse is the wire form of election.VoteResponse
type VoteResponse election.VoteResponse

// RoundRecord is one finished election round as stored in the journal
type RoundRecord struct {
	Node       election.NodeID
	Outcome    election.Outcome
	RecordedAt time.Time
}

// VoteRecord is one granted vote as stored in the journal
type VoteRecord struct {
	Voter      election.NodeID
	Candidate  election.NodeID
	Term       uint64
	RecordedAt time.Time
}

func (m *VoteRequest) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, m.Term)
	b = appendSint(b, 2, int64(m.CandidateID))
	return b, nil
}

func (m *VoteRequest) UnmarshalWire(b []byte) error {
	*m = VoteRequest{}
	return consumeFields(b, func(num protowire.Number, v value) error {
		switch num {
		case 1:
			return v.uint(&m.Term)
		case 2:
			var id int64
			if err := v.sint(&id); err != nil {
				return err
			}
			m.CandidateID = election.NodeID(id)
		}
		return nil
	})
}

func (m *VoteResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendUint(b, 1, m.Term)
	b = appendBool(b, 2, m.VoteGranted)
	return b, nil
}

func (m *VoteResponse) UnmarshalWire(b []byte) error {
	*m = VoteResponse{}
	return consumeFields(b, func(num protowire.Number, v value) error {
		switch num {
		case 1:
			return v.uint(&m.Term)
		case 2:
			return v.bool(&m.VoteGranted)
		}
		return nil
	})
}

func (m *RoundRecord) MarshalWire() ([]byte, error) {
	o := m.Outcome
	var b []byte
	b = appendSint(b, 1, int64(m.Node))
	if o.RoundID != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, o.RoundID)
	}
	b = appendUint(b, 3, o.Term)
	b = appendUint(b, 4, o.FinalTerm)
	b = appendUint(b, 5, uint64(o.Role))
	b = appendUint(b, 6, uint64(o.Grants))
	b = appendUint(b, 7, uint64(o.Denials))
	b = appendUint(b, 8, uint64(o.NoResponses))
	b = appendBool(b, 9, o.SteppedDown)
	b = appendUint(b, 10, o.HigherTerm)
	b = appendBool(b, 11, o.Superseded)
	b = appendUint(b, 12, uint64(o.Duration))
	b = appendUint(b, 13, uint64(m.RecordedAt.UnixNano()))
	return b, nil
}

func (m *RoundRecord) UnmarshalWire(b []byte) error {
	*m = RoundRecord{}
	o := &m.Outcome
	var recordedAt uint64
	err := consumeFields(b, func(num protowire.Number, v value) error {
		switch num {
		case 1:
			var id int64
			if err := v.sint(&id); err != nil {
				return err
			}
			m.Node = election.NodeID(id)
		case 2:
			return v.string(&o.RoundID)
		case 3:
			return v.uint(&o.Term)
		case 4:
			return v.uint(&o.FinalTerm)
		case 5:
			var role uint64
			if err := v.uint(&role); err != nil {
				return err
			}
			o.Role = election.Role(role)
		case 6:
			return v.int(&o.Grants)
		case 7:
			return v.int(&o.Denials)
		case 8:
			return v.int(&o.NoResponses)
		case 9:
			return v.bool(&o.SteppedDown)
		case 10:
			return v.uint(&o.HigherTerm)
		case 11:
			return v.bool(&o.Superseded)
		case 12:
			var d uint64
			if err := v.uint(&d); err != nil {
				return err
			}
			o.Duration = time.Duration(int64(d))
		case 13:
			return v.uint(&recordedAt)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.RecordedAt = time.Unix(0, int64(recordedAt))
	return nil
}

func (m *VoteRecord) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendSint(b, 1, int64(m.Voter))
	b = appendSint(b, 2, int64(m.Candidate))
	b = appendUint(b, 3, m.Term)
	b = appendUint(b, 4, uint64(m.RecordedAt.UnixNano()))
	return b, nil
}

func (m *VoteRecord) UnmarshalWire(b []byte) error {
	*m = VoteRecord{}
	var recordedAt uint64
	err := consumeFields(b, func(num protowire.Number, v value) error {
		switch num {
		case 1, 2:
			var id int64
			if err := v.sint(&id); err != nil {
				return err
			}
			if num == 1 {
				m.Voter = election.NodeID(id)
			} else {
				m.Candidate = election.NodeID(id)
			}
		case 3:
			return v.uint(&m.Term)
		case 4:
			return v.uint(&recordedAt)
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.RecordedAt = time.Unix(0, int64(recordedAt))
	return nil
}

// Zero values are omitted, as proto3 does
func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// value is a single field value that has already been split off the buffer
type value struct {
	typ protowire.Type
	raw []byte
}

func (v value) varint() (uint64, error) {
	if v.typ != protowire.VarintType {
		return 0, fmt.Errorf("%w: expected varint, got wire type %d", ErrMalformed, v.typ)
	}
	x, n := protowire.ConsumeVarint(v.raw)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	return x, nil
}

func (v value) uint(dst *uint64) error {
	x, err := v.varint()
	*dst = x
	return err
}

func (v value) int(dst *int) error {
	x, err := v.varint()
	*dst = int(x)
	return err
}

func (v value) sint(dst *int64) error {
	x, err := v.varint()
	*dst = protowire.DecodeZigZag(x)
	return err
}

func (v value) bool(dst *bool) error {
	x, err := v.varint()
	*dst = protowire.DecodeBool(x)
	return err
}

func (v value) string(dst *string) error {
	if v.typ != protowire.BytesType {
		return fmt.Errorf("%w: expected bytes, got wire type %d", ErrMalformed, v.typ)
	}
	s, n := protowire.ConsumeString(v.raw)
	if n < 0 {
		return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	*dst = s
	return nil
}

// consumeFields walks every field of b and hands known and unknown ones alike to fn
func consumeFields(b []byte, fn func(num protowire.Number, v value) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(m))
		}
		if err := fn(num, value{typ: typ, raw: b[:m]}); err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}
