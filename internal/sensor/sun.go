package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/notify"
)

// DayState is the day/night state.
type DayState string

const (
	Day        DayState = "day"
	Night      DayState = "night"
	DayInvalid DayState = "invalid"
)

// TwilightSource looks up civil sunrise and sunset for a date.
type TwilightSource interface {
	Twilight(ctx context.Context, lat, lon float64, date time.Time) (sunrise, sunset time.Time, err error)
}

const dateLayout = "2006-01-02"

var (
	kindSunLookupFailed = notify.Kind{
		Name:     "lookup_failed",
		Severity: notify.Warn,
		Template: "%s - unable to get sunrise/sunset data",
		Single:   true,
	}
	kindSunInvalid = notify.Kind{
		Name:     "day_invalid",
		Severity: notify.Warn,
		Template: "%s - day/night state is unknown",
		Single:   true,
	}
	kindSunrise = notify.Kind{
		Name:      "sunrise",
		Severity:  notify.Info,
		Template:  "sunrise at %s",
		AutoClear: true,
		Clears:    []string{"day_invalid"},
	}
	kindSunset = notify.Kind{
		Name:      "sunset",
		Severity:  notify.Info,
		Template:  "sunset at %s",
		AutoClear: true,
		Clears:    []string{"day_invalid"},
	}
)

// SunConfig describes the day/night sensor.
type SunConfig struct {
	Name         string
	Latitude     float64
	Longitude    float64
	ExtraSunrise time.Duration
	ExtraSunset  time.Duration
	// Retry is the minimum spacing between failed lookups.
	Retry    time.Duration
	Location *time.Location
}

// SunSensor caches one day's twilight times and derives day/night from the
// shifted times.
type SunSensor struct {
	cfg    SunConfig
	src    TwilightSource
	notes  *notify.Registry
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	sunrise     time.Time
	sunset      time.Time
	cachedFor   string
	lastAttempt time.Time
	state       DayState
}

// NewSunSensor creates the sensor.
func NewSunSensor(cfg SunConfig, src TwilightSource, notes *notify.Registry, logger *zap.Logger, now func() time.Time) *SunSensor {
	if now == nil {
		now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &SunSensor{cfg: cfg, src: src, notes: notes, logger: logger, now: now}
}

// Name returns the sensor label.
func (s *SunSensor) Name() string { return s.cfg.Name }

// Read refreshes the cache when it is not for today, at most once per
// retry interval. On failure the previous cache is kept.
func (s *SunSensor) Read(ctx context.Context) error {
	s.mu.Lock()
	now := s.now().In(s.cfg.Location)
	today := now.Format(dateLayout)
	if s.cachedFor == today {
		s.mu.Unlock()
		return nil
	}
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.cfg.Retry {
		s.mu.Unlock()
		return nil
	}
	s.lastAttempt = now
	s.mu.Unlock()

	rise, set, err := s.src.Twilight(ctx, s.cfg.Latitude, s.cfg.Longitude, now)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.notes.Raise(kindSunLookupFailed, s.cfg.Name)
		return fmt.Errorf("twilight lookup: %w", err)
	}
	s.sunrise = rise.In(s.cfg.Location)
	s.sunset = set.In(s.cfg.Location)
	s.cachedFor = today
	s.notes.Clear(kindSunLookupFailed.Name)
	return nil
}

// effective returns today's shifted times. A cache from yesterday is moved
// forward a day; anything older is unusable. Caller holds mu.
func (s *SunSensor) effective(now time.Time) (rise, set time.Time, ok bool) {
	if s.cachedFor == "" {
		return time.Time{}, time.Time{}, false
	}
	rise = s.sunrise.Add(s.cfg.ExtraSunrise)
	set = s.sunset.Add(s.cfg.ExtraSunset)
	switch s.cachedFor {
	case now.Format(dateLayout):
		return rise, set, true
	case now.AddDate(0, 0, -1).Format(dateLayout):
		return rise.Add(24 * time.Hour), set.Add(24 * time.Hour), true
	}
	return time.Time{}, time.Time{}, false
}

// Check derives day/night and raises on transitions.
func (s *SunSensor) Check() DayState {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().In(s.cfg.Location)
	rise, set, ok := s.effective(now)
	st := DayInvalid
	if ok {
		st = Night
		if now.After(rise) && now.Before(set) {
			st = Day
		}
	}

	prev := s.state
	s.state = st
	if st == prev {
		return st
	}

	switch st {
	case DayInvalid:
		s.notes.Raise(kindSunInvalid, s.cfg.Name)
	case Day:
		if prev == Night {
			s.notes.Raise(kindSunrise, rise.Format("15:04"))
		} else {
			s.notes.Clear(kindSunInvalid.Name)
		}
	case Night:
		if prev == Day {
			s.notes.Raise(kindSunset, set.Format("15:04"))
		} else {
			s.notes.Clear(kindSunInvalid.Name)
		}
	}
	return st
}

// ReadAndCheck refreshes if due, logging failures, then checks.
func (s *SunSensor) ReadAndCheck(ctx context.Context) DayState {
	if err := s.Read(ctx); err != nil && s.logger != nil {
		s.logger.Warn("sunrise/sunset lookup failed", zap.Error(err))
	}
	return s.Check()
}

// State returns the state from the last Check.
func (s *SunSensor) State() DayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return DayInvalid
	}
	return s.state
}

// Times returns today's effective sunrise and sunset.
func (s *SunSensor) Times() (sunrise, sunset time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effective(s.now().In(s.cfg.Location))
}

// Describe formats today's effective times for display, e.g.
// "06:42 [+30min]". Both are empty when no usable data exists.
func (s *SunSensor) Describe() (sunrise, sunset string) {
	rise, set, ok := s.Times()
	if !ok {
		return "", ""
	}
	return describeTime(rise, s.cfg.ExtraSunrise), describeTime(set, s.cfg.ExtraSunset)
}

func describeTime(t time.Time, extra time.Duration) string {
	out := t.Format("15:04")
	if extra != 0 {
		out += fmt.Sprintf(" [%+dmin]", int(extra.Minutes()))
	}
	return out
}

// Status returns the worst active severity of the sensor's registry.
func (s *SunSensor) Status() notify.Severity {
	return s.notes.Status()
}
