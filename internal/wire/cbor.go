// CBOR<->JSON bridge. The rest of the runtime treats Go values decoded from
// encoding/json (map[string]any, []any, string, float64/json.Number, bool,
// nil) as the canonical in-memory representation; CBOR is only produced or
// consumed here, at the wire edge, per the data model's resolution of
// picking one canonical representation and converting at the boundary.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	// Canonical encoding (RFC 8949 §4.2.1) already chooses the shortest
	// integer width and the shortest float width that round-trips, and
	// uses definite-length encoding for strings, maps, and arrays, which
	// is exactly the width/definiteness discipline this bridge requires.
	cborEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad cbor encode options: %v", err))
	}
	cborDecMode, err = cbor.DecOptions{
		// Indefinite-length (chunked) strings on read are the default;
		// no option needed beyond the base decoder.
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad cbor decode options: %v", err))
	}
}

// JSONToCBOR parses JSON bytes into the canonical in-memory representation
// and re-encodes them as CBOR, preferring the narrowest integer/float width
// that round-trips (via canonical CBOR encoding rules).
func JSONToCBOR(j []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("wire: decode json: %w", err)
	}
	converted := narrowNumbers(v)
	out, err := cborEncMode.Marshal(converted)
	if err != nil {
		return nil, fmt.Errorf("wire: encode cbor: %w", err)
	}
	return out, nil
}

// CBORToJSON parses CBOR bytes into the canonical in-memory representation
// and re-encodes them as JSON.
func CBORToJSON(c []byte) ([]byte, error) {
	var v any
	if err := cborDecMode.Unmarshal(c, &v); err != nil {
		return nil, fmt.Errorf("wire: decode cbor: %w", err)
	}
	jsonable := stringifyKeys(v)
	out, err := json.Marshal(jsonable)
	if err != nil {
		return nil, fmt.Errorf("wire: encode json: %w", err)
	}
	return out, nil
}

// narrowNumbers walks a json.Decoder(UseNumber) tree, turning each
// json.Number into an int64 when it is integral and fits, else a float64,
// so the CBOR encoder picks minimal integer or float width rather than
// always emitting a float64.
func narrowNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = narrowNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = narrowNumbers(val)
		}
		return out
	default:
		return v
	}
}

// stringifyKeys converts CBOR-decoded map[any]any (and nested byte slices)
// into the map[string]any / string shape JSON marshaling requires.
func stringifyKeys(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringifyKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringifyKeys(val)
		}
		return out
	case []byte:
		return Base64Encode(t)
	default:
		return v
	}
}
