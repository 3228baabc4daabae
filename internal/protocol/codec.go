package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape of every message on the transport: a named
// event carrying a single structured payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds an outbound envelope for event carrying payload.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses a raw transport frame into its envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, NewValidationError("malformed frame: %v", err)
	}
	if env.Event == "" {
		return Envelope{}, NewValidationError("frame is missing an event name")
	}
	return env, nil
}

// FlexFloat unmarshals from either a JSON number or a numeric string,
// matching clients that occasionally serialize coordinates as strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("invalid numeric value %q: %w", b, err)
	}
	*f = FlexFloat(v)
	return nil
}

func (f FlexFloat) Float64() float64 { return float64(f) }

// CanonicalJSON re-marshals arbitrary JSON with sorted object keys so
// two structurally-equal-but-differently-ordered payloads compare
// equal as strings. Used to compare route geometry by serialized
// equality (§4.3, §9 "Route geometry equality").
func CanonicalJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	canon, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// canonicalize replaces every map with a sortedMap so json.Marshal
// emits keys in a deterministic order.
func canonicalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		sm := newSortedMap(len(t))
		for k, val := range t {
			cv, err := canonicalize(val)
			if err != nil {
				return nil, err
			}
			sm.set(k, cv)
		}
		return sm, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			cv, err := canonicalize(val)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return v, nil
	}
}
