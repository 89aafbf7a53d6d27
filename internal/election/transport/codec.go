package transport

import (
	"fmt"

	"google.golang.org/grpc/encoding"

	"raft-election/internal/election/wire"
)

// CodecName is the gRPC content-subtype of election messages: requests travel as "application/grpc+electionwire".
const CodecName = "electionwire"

// codec plugs the wire package into gRPC. It only knows about wire.Message values.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wire.Message)
	if !ok {
		return nil, fmt.Errorf("%s codec: cannot marshal %T", CodecName, v)
	}
	return m.MarshalWire()
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wire.Message)
	if !ok {
		return fmt.Errorf("%s codec: cannot unmarshal into %T", CodecName, v)
	}
	return m.UnmarshalWire(data)
}

func (codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(codec{})
}
