package supervisor

import (
	"fmt"
)

// Codec encodes the supervisor messages for gRPC. It is forced on every call
// instead of being registered, so it never shadows the default proto codec.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("supervisor codec: cannot marshal %T", v)
	}
	return m.marshal(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("supervisor codec: cannot unmarshal into %T", v)
	}
	if err := m.unmarshal(data); err != nil {
		return fmt.Errorf("supervisor codec: decode %T: %w", v, err)
	}
	return nil
}

// Name is the content subtype; the supervisor speaks plain protobuf.
func (Codec) Name() string {
	return "proto"
}
