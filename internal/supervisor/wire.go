package supervisor

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// message is implemented by every request and response type. The field
// numbers follow the supervisor's protobuf schema; unknown fields are
// skipped on decode.
type message interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	return appendVarint(b, num, uint64(int64(v)))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendStrings(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendMessage(b []byte, num protowire.Number, m message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.marshal(nil))
}

// fieldFunc decodes the value of one field from b and returns the number of
// bytes consumed. Returning skip leaves the field to the generic skipper.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

const skip = -1

func decodeFields(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if m == skip {
			m = protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return protowire.ParseError(m)
			}
		}
		b = b[m:]
	}
	return nil
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("unexpected wire type %d", typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// Field readers that assign into dst and report bytes consumed.

func readUint32(dst *uint32, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = uint32(v)
	return n, err
}

func readUint64(dst *uint64, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = v
	return n, err
}

func readInt32(dst *int32, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = int32(v)
	return n, err
}

func readBool(dst *bool, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = protowire.DecodeBool(v)
	return n, err
}

func readString(dst *string, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	*dst = string(v)
	return n, err
}

func readStrings(dst *[]string, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err == nil {
		*dst = append(*dst, string(v))
	}
	return n, err
}

func readMessage(m message, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return n, err
	}
	return n, m.unmarshal(v)
}
