// Package envlog appends environmental readings to one or more stores at a
// bounded rate.
package envlog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Kind identifies the measured quantity.
type Kind string

const (
	AmbientTemp     Kind = "AMBIENT_TEMP"
	AmbientHumidity Kind = "AMBIENT_HUMI"
	WaterTemp       Kind = "WATER_TEMP"
)

// Reading is one logged value.
type Reading struct {
	Time  time.Time
	Kind  Kind
	Value float64
}

// Store persists readings.
type Store interface {
	Write(ctx context.Context, r Reading) error
	Close() error
}

// MultiStore writes to every store, joining their errors.
type MultiStore []Store

func (m MultiStore) Write(ctx context.Context, r Reading) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiStore) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder writes each kind at most once per interval. Write failures are
// logged and otherwise ignored.
type Recorder struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu   sync.Mutex
	last map[Kind]time.Time
}

// NewRecorder creates a recorder. A nil store records nothing.
func NewRecorder(store Store, interval time.Duration, logger *zap.Logger, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      now,
		last:     make(map[Kind]time.Time),
	}
}

// Record writes value if the kind is due. It reports whether a write was
// attempted.
func (r *Recorder) Record(ctx context.Context, kind Kind, value float64) bool {
	if r.store == nil {
		return false
	}
	now := r.now()

	r.mu.Lock()
	if last, ok := r.last[kind]; ok && now.Sub(last) < r.interval {
		r.mu.Unlock()
		return false
	}
	r.last[kind] = now
	r.mu.Unlock()

	if err := r.store.Write(ctx, Reading{Time: now, Kind: kind, Value: value}); err != nil {
		r.logger.Warn("environment log write failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	return true
}

// Close closes the store.
func (r *Recorder) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
