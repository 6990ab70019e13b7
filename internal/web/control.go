package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/actuator"
	"github.com/nunofsantos/coop-controller/internal/coop"
	"github.com/nunofsantos/coop-controller/internal/envlog"
	"github.com/nunofsantos/coop-controller/internal/status"
)

const (
	defaultHistoryLimit = 96
	maxHistoryLimit     = 1000
)

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	mode := chi.URLParam(r, "mode")
	s.afterAction(w, r, "set mode", s.ctrl.SetMode(id, mode),
		zap.String("device", id), zap.String("mode", mode))
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state := chi.URLParam(r, "state")
	var on bool
	switch strings.ToLower(state) {
	case "on":
		on = true
	case "off":
	default:
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "power state must be on or off")
		return
	}
	s.afterAction(w, r, "set power", s.ctrl.SetPower(id, on),
		zap.String("device", id), zap.Bool("on", on))
}

func (s *Server) handleDoor(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	s.afterAction(w, r, "door action", s.ctrl.DoorAction(action), zap.String("action", action))
}

// afterAction refreshes the tracker, pushes the new snapshot and answers the
// request: a redirect to the dashboard for form posts, JSON otherwise.
func (s *Server) afterAction(w http.ResponseWriter, r *http.Request, what string, err error, fields ...zap.Field) {
	if err != nil {
		s.logger.Warn(what+" failed", append(fields, zap.Error(err))...)
		code, errCode := statusFor(err)
		writeError(w, code, errCode, err.Error())
		return
	}
	s.logger.Info(what, fields...)

	s.tracker.Update(s.ctrl.Status())
	snap := s.tracker.Snapshot()
	s.Broadcast(snap)

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(status.FormatJSON(snap))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, coop.ErrUnknownDevice):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, actuator.ErrInvalidMode),
		errors.Is(err, actuator.ErrInvalidAction),
		errors.Is(err, coop.ErrUnsupported):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, actuator.ErrInhibited):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, coop.ErrClosed):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// ReadingJSON is one logged reading.
type ReadingJSON struct {
	Timestamp string  `json:"timestamp"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "history is not enabled")
		return
	}
	kind := envlog.Kind(strings.ToUpper(r.URL.Query().Get("kind")))
	switch kind {
	case envlog.AmbientTemp, envlog.AmbientHumidity, envlog.WaterTemp:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "kind must be AMBIENT_TEMP, AMBIENT_HUMI or WATER_TEMP")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	readings, err := s.history.Recent(r.Context(), kind, limit)
	if err != nil {
		s.logger.Warn("history query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "history query failed")
		return
	}
	out := make([]ReadingJSON, 0, len(readings))
	for _, rd := range readings {
		out = append(out, ReadingJSON{
			Timestamp: rd.Time.UTC().Format(time.RFC3339),
			Kind:      string(rd.Kind),
			Value:     rd.Value,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": out, "count": len(out)})
}
