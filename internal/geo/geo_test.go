package geo

import "testing"

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestPlanarDistanceZero(t *testing.T) {
	d := PlanarDistance(14.5, 121.0, 14.5, 121.0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestPlanarDistanceAboveThreshold(t *testing.T) {
	// ~22m at mid-latitudes, comfortably above a movementThreshold of 0.0001deg.
	d := PlanarDistance(14.5000, 121.0000, 14.5002, 121.0000)
	if d <= 0.0001 {
		t.Fatalf("expected distance above 0.0001, got %f", d)
	}
}

func TestPlanarDistanceBelowThreshold(t *testing.T) {
	d := PlanarDistance(14.5000, 121.0000, 14.50001, 121.0000)
	if d >= 0.0001 {
		t.Fatalf("expected distance below 0.0001, got %f", d)
	}
}
