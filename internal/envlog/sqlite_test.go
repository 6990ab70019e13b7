package envlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nunofsantos/coop-controller/internal/config"
)

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "data", "coop.db"),
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteWriteAndRecent(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	for i, v := range []float64{70, 71, 72} {
		r := Reading{Time: t0.Add(time.Duration(i) * time.Minute), Kind: WaterTemp, Value: v}
		if err := s.Write(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := s.Write(ctx, Reading{Time: t0, Kind: AmbientHumidity, Value: 55}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.Recent(ctx, WaterTemp, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("readings: got %d, want 2", len(got))
	}
	if got[0].Value != 72 || got[1].Value != 71 {
		t.Errorf("order: got %v, %v, want 72, 71", got[0].Value, got[1].Value)
	}
	if !got[0].Time.Equal(t0.Add(2*time.Minute)) || got[0].Kind != WaterTemp {
		t.Errorf("first reading: got %+v", got[0])
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coop.db")
	cfg := config.SQLiteConfig{Path: path, BusyTimeout: 1}

	s, err := OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Write(context.Background(), Reading{Time: t0, Kind: AmbientTemp, Value: 40}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()
	got, err := s.Recent(context.Background(), AmbientTemp, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Value != 40 {
		t.Errorf("got %+v, want one reading of 40", got)
	}
}
