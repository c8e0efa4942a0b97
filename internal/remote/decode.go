package remote

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// maxExactInt is the largest integer a float64 holds without rounding.
const maxExactInt = 1 << 53

// DecodeStruct reads one JSON object into a Struct. Integers a double cannot
// hold exactly, such as 64-bit encounter ids, are kept as their decimal
// string so distinct ids never collapse into one number.
func DecodeStruct(r io.Reader) (*structpb.Struct, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("response is not a JSON object")
	}
	for k, v := range raw {
		raw[k] = normalizeNumbers(v)
	}
	return structpb.NewStruct(raw)
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return numberValue(t)
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	default:
		return v
	}
}

func numberValue(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil || i > maxExactInt || i < -maxExactInt {
			return s
		}
		return float64(i)
	}
	f, err := n.Float64()
	if err != nil {
		return s
	}
	return f
}
