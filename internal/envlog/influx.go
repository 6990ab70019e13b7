package envlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	measurement           = "coop_log"
)

// ErrInfluxUnhealthy is returned when the server answers its ping but
// reports itself unhealthy.
var ErrInfluxUnhealthy = errors.New("envlog: influxdb not healthy")

// InfluxStore writes readings through the non-blocking write API. Points are
// batched and flushed in the background; write errors arrive asynchronously
// and are logged.
type InfluxStore struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	site     string
}

// ConnectInflux creates the client and checks the server is reachable.
func ConnectInflux(cfg config.InfluxDBConfig, site string, logger *zap.Logger) (*InfluxStore, error) {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 100
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = 10
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000))

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging influxdb: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrInfluxUnhealthy
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	go func(errs <-chan error) {
		for err := range errs {
			logger.Warn("influxdb write failed", zap.Error(err))
		}
	}(writeAPI.Errors())

	return &InfluxStore{client: client, writeAPI: writeAPI, site: site}, nil
}

// Write queues r for the next batch.
func (s *InfluxStore) Write(_ context.Context, r Reading) error {
	p := write.NewPoint(measurement,
		map[string]string{"kind": string(r.Kind), "site": s.site},
		map[string]interface{}{"value": r.Value},
		r.Time)
	s.writeAPI.WritePoint(p)
	return nil
}

// Close flushes pending points and releases the client.
func (s *InfluxStore) Close() error {
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}
