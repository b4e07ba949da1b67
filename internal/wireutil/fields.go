// Package wireutil provides a minimal field walker on top of
// google.golang.org/protobuf/encoding/protowire. It stands in for the
// generated parser library that owns the simulator's actual wire schema:
// callers know which field numbers and wire types they expect for a given
// message and pull them out by hand, the way hand-written protobuf
// decoders did before code generation.
package wireutil

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded top-level field: its number, wire type, and raw
// value bytes (for length-delimited fields) or numeric value (for varint
// fields).
type Field struct {
	Number  protowire.Number
	Type    protowire.Type
	Varint  uint64
	Bytes   []byte
}

// Walk decodes data into its top-level fields, in wire order. It does not
// recurse into length-delimited sub-messages -- callers call Walk again on
// a Field's Bytes to descend a level, mirroring how the nested dispatch
// ladders in the game/companion decoders work.
func Walk(data []byte) ([]Field, error) {
	var fields []Field
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "failed to consume field tag")
		}
		data = data[n:]

		f := Field{Number: num, Type: typ}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "failed to consume varint field")
			}
			f.Varint = v
			data = data[n:]
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "failed to consume fixed32 field")
			}
			f.Varint = uint64(v)
			data = data[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "failed to consume fixed64 field")
			}
			f.Varint = v
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "failed to consume bytes field")
			}
			f.Bytes = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.Wrap(protowire.ParseError(n), "failed to consume field")
			}
			data = data[n:]
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// First returns the first field with the given number, if any.
func First(fields []Field, num protowire.Number) (Field, bool) {
	for _, f := range fields {
		if f.Number == num {
			return f, true
		}
	}
	return Field{}, false
}

// All returns every field with the given number, in order.
func All(fields []Field, num protowire.Number) []Field {
	var out []Field
	for _, f := range fields {
		if f.Number == num {
			out = append(out, f)
		}
	}
	return out
}
