package protocol

import (
	"encoding/json"
	"testing"
)

func TestFlexFloatUnmarshalsNumericAndStringForms(t *testing.T) {
	var numeric, stringy FlexFloat
	if err := json.Unmarshal([]byte(`12.5`), &numeric); err != nil {
		t.Fatalf("numeric: unexpected error: %v", err)
	}
	if err := json.Unmarshal([]byte(`"12.5"`), &stringy); err != nil {
		t.Fatalf("string: unexpected error: %v", err)
	}
	if numeric != stringy {
		t.Fatalf("expected equal values, got %v and %v", numeric, stringy)
	}
	if numeric.Float64() != 12.5 {
		t.Fatalf("expected 12.5, got %v", numeric.Float64())
	}
}

func TestFlexFloatRejectsNonNumericString(t *testing.T) {
	var f FlexFloat
	if err := json.Unmarshal([]byte(`"not-a-number"`), &f); err == nil {
		t.Fatal("expected an error for a non-numeric string")
	}
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	raw, err := Encode(EventBusInfo, map[string]any{"accountId": "d1"})
	if err != nil {
		t.Fatalf("encode: unexpected error: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: unexpected error: %v", err)
	}
	if env.Event != EventBusInfo {
		t.Fatalf("expected event %q, got %q", EventBusInfo, env.Event)
	}
}

func TestDecodeRejectsMissingEventName(t *testing.T) {
	if _, err := Decode([]byte(`{"data":{}}`)); err == nil {
		t.Fatal("expected an error for a frame with no event name")
	}
}

func TestDecodeRejectsMalformedFrame(t *testing.T) {
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected an error for a malformed frame")
	}
}

func TestCanonicalJSONIsInsensitiveToKeyOrder(t *testing.T) {
	a, err := CanonicalJSON(json.RawMessage(`{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := CanonicalJSON(json.RawMessage(`{"a":2,"b":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected canonical forms to match, got %q and %q", a, b)
	}
}

func TestCanonicalJSONHandlesEmptyInput(t *testing.T) {
	s, err := CanonicalJSON(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string, got %q", s)
	}
}
