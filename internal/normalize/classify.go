package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// legacySubtopics are the fourth-level segments that change device state.
var legacySubtopics = map[string]bool{
	"set":     true,
	"control": true,
	"state":   true,
	"status":  true,
}

// Normalizer classifies messages for one root prefix.
type Normalizer struct {
	root string
}

// New returns a Normalizer for the given root prefix (e.g. "office").
func New(root string) *Normalizer {
	return &Normalizer{root: root}
}

// Root returns the root prefix.
func (n *Normalizer) Root() string {
	return n.root
}

// Classify interprets a message. See the package-level Classify.
func (n *Normalizer) Classify(topic, payload string) ParsedUpdate {
	return Classify(n.root, topic, payload)
}

// Classify interprets a (topic, payload) pair.
//
// Disambiguation is by segment count alone:
//   - 2 segments under root: a JSON object payload is a ContextUpdate,
//     anything else is a RawPassthrough.
//   - 4 or more segments under root: a LegacyUpdate when everything after the
//     third segment is exactly one of set, control, state or status.
//   - Everything else is a RawPassthrough.
//
// Classify is total and has no side effects.
func Classify(root, topic, payload string) ParsedUpdate {
	segments := strings.Split(topic, "/")
	if len(segments) == 0 || segments[0] != root {
		return RawPassthrough{Topic: topic, Value: payload}
	}

	switch {
	case len(segments) == 2:
		fields, ok := decodeObject(payload)
		if !ok {
			return RawPassthrough{Topic: topic, Value: payload}
		}
		return ContextUpdate{ContextID: segments[1], Fields: fields}

	case len(segments) >= 4:
		base := strings.Join(segments[:3], "/")
		sub := strings.Join(segments[3:], "/")
		if legacySubtopics[sub] {
			return LegacyUpdate{StateKey: base + "/state", Value: payload}
		}
	}

	return RawPassthrough{Topic: topic, Value: payload}
}

// decodeObject parses payload as a single JSON object and stringifies its values.
func decodeObject(payload string) (map[string]string, bool) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	// Trailing data after the object is malformed.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	fields := make(map[string]string, len(obj))
	for key, val := range obj {
		fields[key] = Stringify(val)
	}
	return fields, true
}

// Stringify renders a decoded JSON value as device state text.
//
// Strings are returned verbatim, numbers by their literal text, booleans as
// true/false, null as "null", and arrays or objects as compact JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return "null"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(val); err != nil {
			return ""
		}
		return strings.TrimSuffix(buf.String(), "\n")
	}
}

// ParseNumeric coerces a state value to a finite float.
// Surrounding whitespace is ignored; NaN and infinities are rejected.
func ParseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// SortedKeys returns the field names of a ContextUpdate in lexical order.
func SortedKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
