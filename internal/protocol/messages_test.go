package protocol

import (
	"encoding/json"
	"testing"
)

func TestValidateLatLngAcceptsBoundaryValues(t *testing.T) {
	cases := []struct {
		lat, lng float64
	}{
		{90, 0}, {-90, 0}, {0, 180}, {0, -180}, {90, 180}, {-90, -180},
	}
	for _, c := range cases {
		if err := validateLatLng(c.lat, c.lng); err != nil {
			t.Errorf("validateLatLng(%v, %v): unexpected error: %v", c.lat, c.lng, err)
		}
	}
}

func TestValidateLatLngRejectsJustPastBoundary(t *testing.T) {
	cases := []struct {
		lat, lng float64
	}{
		{90.000001, 0}, {-90.000001, 0}, {0, 180.000001}, {0, -180.000001},
	}
	for _, c := range cases {
		if err := validateLatLng(c.lat, c.lng); err == nil {
			t.Errorf("validateLatLng(%v, %v): expected an error, got nil", c.lat, c.lng)
		}
	}
}

func TestParsePingDriverAcceptsPassengerCountBoundaries(t *testing.T) {
	for _, count := range []int{1, 20} {
		raw := json.RawMessage(`{"driverAccountId":"d1","lat":1,"lng":1,"passengerCount":` + itoa(count) + `}`)
		p, err := ParsePingDriver(raw)
		if err != nil {
			t.Fatalf("passengerCount=%d: unexpected error: %v", count, err)
		}
		if p.PassengerCount != count {
			t.Fatalf("passengerCount=%d: got %d", count, p.PassengerCount)
		}
	}
}

func TestParsePingDriverRejectsPassengerCountOutOfRange(t *testing.T) {
	for _, count := range []int{0, 21} {
		raw := json.RawMessage(`{"driverAccountId":"d1","lat":1,"lng":1,"passengerCount":` + itoa(count) + `}`)
		if _, err := ParsePingDriver(raw); err == nil {
			t.Fatalf("passengerCount=%d: expected an error, got nil", count)
		}
	}
}

func TestParsePingDriverDefaultsPassengerCountWhenOmitted(t *testing.T) {
	raw := json.RawMessage(`{"driverAccountId":"d1","lat":1,"lng":1}`)
	p, err := ParsePingDriver(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PassengerCount != 1 {
		t.Fatalf("expected default passengerCount 1, got %d", p.PassengerCount)
	}
}

func TestParsePingDriverRejectsOutOfRangeLatLng(t *testing.T) {
	raw := json.RawMessage(`{"driverAccountId":"d1","lat":91,"lng":1}`)
	if _, err := ParsePingDriver(raw); err == nil {
		t.Fatal("expected an error for out-of-range lat")
	}
}

func TestParseUpdateLocationAcceptsNumericAndStringCoordinates(t *testing.T) {
	numeric := json.RawMessage(`{"accountId":"d1","lat":45.5,"lng":-122.25}`)
	stringy := json.RawMessage(`{"accountId":"d1","lat":"45.5","lng":"-122.25"}`)

	pn, err := ParseUpdateLocation(numeric)
	if err != nil {
		t.Fatalf("numeric encoding: unexpected error: %v", err)
	}
	ps, err := ParseUpdateLocation(stringy)
	if err != nil {
		t.Fatalf("string encoding: unexpected error: %v", err)
	}
	if pn.Lat != ps.Lat || pn.Lng != ps.Lng {
		t.Fatalf("expected equal coordinates regardless of encoding, got %+v and %+v", pn, ps)
	}
	if pn.Lat != 45.5 || pn.Lng != -122.25 {
		t.Fatalf("unexpected parsed coordinates: %+v", pn)
	}
}

func TestParseUpdateLocationAcceptsStringEncodedDestination(t *testing.T) {
	raw := json.RawMessage(`{"accountId":"d1","lat":1,"lng":1,"destinationLat":"2.5","destinationLng":"3.5"}`)
	p, err := ParseUpdateLocation(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DestinationLat == nil || *p.DestinationLat != 2.5 {
		t.Fatalf("expected destinationLat 2.5, got %v", p.DestinationLat)
	}
	if p.DestinationLng == nil || *p.DestinationLng != 3.5 {
		t.Fatalf("expected destinationLng 3.5, got %v", p.DestinationLng)
	}
}

func TestParseUpdateLocationRejectsOutOfRangeLatLng(t *testing.T) {
	raw := json.RawMessage(`{"accountId":"d1","lat":90.5,"lng":1}`)
	if _, err := ParseUpdateLocation(raw); err == nil {
		t.Fatal("expected an error for out-of-range lat")
	}
}

func TestParseUpdateLocationRejectsNegativePassengerCount(t *testing.T) {
	raw := json.RawMessage(`{"accountId":"d1","lat":1,"lng":1,"passengerCount":-1}`)
	if _, err := ParseUpdateLocation(raw); err == nil {
		t.Fatal("expected an error for negative passengerCount")
	}
}

func TestParseUpdateLocationRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseUpdateLocation(json.RawMessage(`{`)); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}

func TestParseRegisterRoleAcceptsBareStringAndObjectForms(t *testing.T) {
	bare, err := ParseRegisterRole(json.RawMessage(`"driver"`))
	if err != nil {
		t.Fatalf("bare form: unexpected error: %v", err)
	}
	if bare.Role != "driver" {
		t.Fatalf("expected role driver, got %q", bare.Role)
	}

	obj, err := ParseRegisterRole(json.RawMessage(`{"role":"USER","accountId":" u1 "}`))
	if err != nil {
		t.Fatalf("object form: unexpected error: %v", err)
	}
	if obj.Role != "user" || obj.AccountID != "u1" {
		t.Fatalf("expected role=user accountId=u1, got %+v", obj)
	}
}

func TestParseRegisterRoleRejectsUnknownRole(t *testing.T) {
	if _, err := ParseRegisterRole(json.RawMessage(`"passenger"`)); err == nil {
		t.Fatal("expected an error for an unknown role")
	}
}

func TestParseResumeSessionRejectsEmptyKey(t *testing.T) {
	if _, err := ParseResumeSession(json.RawMessage(`""`)); err == nil {
		t.Fatal("expected an error for an empty session key")
	}
}

func TestParsePassengerUpdateRequiresAtLeastOneField(t *testing.T) {
	if _, err := ParsePassengerUpdate(json.RawMessage(`{"accountId":"d1"}`)); err == nil {
		t.Fatal("expected an error when neither field is supplied")
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
