package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeAttrs parses a JSON object (as produced by MarshalCanonicalAttrs)
// back into an attribute mapping.
//
// JSON numbers must be integers - the model has no float type. Strings in
// "${type.name.attr}" form decode to references, restoring the invariant
// that only references survive serialization.
func DecodeAttrs(data []byte) (Attrs, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}
	attrs := make(Attrs, len(raw))
	for k, v := range raw {
		val, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("decode attr %q: %w", k, err)
		}
		attrs[k] = val
	}
	return attrs, nil
}

func decodeValue(v any) (AttrValue, error) {
	switch val := v.(type) {
	case string:
		if ref, ok := ParseRef(val); ok {
			return ref, nil
		}
		return StringVal(val), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %q", val.String())
		}
		return IntVal(i), nil
	case bool:
		return BoolVal(val), nil
	case []any:
		out := make(ListVal, len(val))
		for i, e := range val {
			ev, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(MapVal, len(val))
		for k, e := range val {
			ev, err := decodeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("null is forbidden in attributes")
	default:
		return nil, fmt.Errorf("unsupported JSON type %T", v)
	}
}
