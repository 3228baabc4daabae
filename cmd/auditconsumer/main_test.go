package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/fleetrelay/internal/ingest"
)

type fakeUpdater struct {
	failCount int
	calls     int
}

func (f *fakeUpdater) Write(ctx context.Context, ev ingest.LocationEvent) error {
	f.calls++
	if f.calls <= f.failCount {
		return errors.New("write fail")
	}
	return nil
}

func TestWriteWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeUpdater{failCount: 2}
	ev := ingest.LocationEvent{AccountID: "d1", Lat: 1, Lng: 2, ObservedAt: time.Now()}
	if err := writeWithRetry(context.Background(), f, ev, 3, time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", f.calls)
	}
}

func TestWriteWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeUpdater{failCount: 5}
	ev := ingest.LocationEvent{AccountID: "d1", Lat: 1, Lng: 2, ObservedAt: time.Now()}
	if err := writeWithRetry(context.Background(), f, ev, 3, time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
}
