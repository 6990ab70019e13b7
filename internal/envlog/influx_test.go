package envlog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/config"
)

type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeInflux) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func TestInfluxStoreWrites(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	defer srv.Close()

	s, err := ConnectInflux(config.InfluxDBConfig{
		URL:       srv.URL,
		Token:     "token",
		Org:       "farm",
		Bucket:    "coop",
		BatchSize: 10,
	}, "backyard", zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.Write(context.Background(), Reading{Time: t0, Kind: WaterTemp, Value: 70.5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	all := strings.Join(fake.bodies, "\n")
	for _, want := range []string{"coop_log,", "kind=WATER_TEMP", "site=backyard", "value=70.5"} {
		if !strings.Contains(all, want) {
			t.Errorf("write body %q missing %q", all, want)
		}
	}
}

func TestInfluxStoreUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := ConnectInflux(config.InfluxDBConfig{URL: srv.URL, Org: "farm", Bucket: "coop"}, "backyard", zap.NewNop())
	if err == nil {
		t.Fatal("expected error")
	}
}
