package envlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	readings []Reading
	err      error
	closed   bool
}

func (m *memStore) Write(_ context.Context, r Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return m.err
}

func (m *memStore) Close() error {
	m.closed = true
	return nil
}

func TestRecorderThrottlesPerKind(t *testing.T) {
	now := t0
	store := &memStore{}
	r := NewRecorder(store, 10*time.Minute, nil, func() time.Time { return now })
	ctx := context.Background()

	if !r.Record(ctx, WaterTemp, 70) {
		t.Fatal("first reading not recorded")
	}
	if !r.Record(ctx, AmbientTemp, 40) {
		t.Fatal("first ambient reading not recorded")
	}

	now = now.Add(5 * time.Minute)
	if r.Record(ctx, WaterTemp, 71) {
		t.Error("reading inside the interval recorded")
	}

	now = now.Add(5 * time.Minute)
	if !r.Record(ctx, WaterTemp, 72) {
		t.Error("reading after the interval not recorded")
	}

	if len(store.readings) != 3 {
		t.Fatalf("readings: got %d, want 3", len(store.readings))
	}
	got := store.readings[2]
	if got.Kind != WaterTemp || got.Value != 72 || !got.Time.Equal(t0.Add(10*time.Minute)) {
		t.Errorf("last reading: got %+v", got)
	}
}

func TestRecorderIgnoresWriteErrors(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	r := NewRecorder(store, time.Minute, nil, func() time.Time { return t0 })
	if !r.Record(context.Background(), AmbientHumidity, 55) {
		t.Error("write should still count as attempted")
	}
}

func TestRecorderNilStore(t *testing.T) {
	r := NewRecorder(nil, time.Minute, nil, nil)
	if r.Record(context.Background(), WaterTemp, 1) {
		t.Error("nil store recorded")
	}
	if err := r.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMultiStore(t *testing.T) {
	a, b := &memStore{}, &memStore{err: errors.New("unreachable")}
	m := MultiStore{a, b}

	err := m.Write(context.Background(), Reading{Time: t0, Kind: WaterTemp, Value: 1})
	if err == nil {
		t.Error("expected joined error")
	}
	if len(a.readings) != 1 || len(b.readings) != 1 {
		t.Errorf("both stores should receive the reading: %d %d", len(a.readings), len(b.readings))
	}
	if err := m.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("both stores should be closed")
	}
}
