// Package web provides the HTTP status page and operator controls for the
// coop controller.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nunofsantos/coop-controller/internal/envlog"
	"github.com/nunofsantos/coop-controller/internal/status"
)

// Controller is the operator control surface. Every call is synchronous.
type Controller interface {
	SetMode(id, mode string) error
	SetPower(id string, on bool) error
	DoorAction(action string) error
	Status() status.Coop
}

// History returns logged readings, newest first.
type History interface {
	Recent(ctx context.Context, kind envlog.Kind, limit int) ([]envlog.Reading, error)
}

// Server serves the status page and controls over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	history    History
	hub        *Hub
	logger     *zap.Logger
}

// New creates a Server that reads state from the given tracker and forwards
// operator actions to ctrl. history may be nil.
func New(addr string, tracker *status.Tracker, ctrl Controller, history History, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: tracker,
		ctrl:    ctrl,
		history: history,
		logger:  logger,
	}
	s.hub = NewHub(logger)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/status.json", s.handleJSON)
	r.Get("/history.json", s.handleHistory)
	r.Get("/ws", s.handleWebSocket)

	r.Post("/devices/{id}/mode/{mode}", s.handleSetMode)
	r.Post("/devices/{id}/power/{state}", s.handleSetPower)
	r.Post("/door/{action}", s.handleDoor)

	return r
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Broadcast pushes the snapshot to every websocket client.
func (s *Server) Broadcast(snap status.Snapshot) {
	s.hub.Publish(status.FormatCompact(snap))
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and disconnects websocket
// clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Warn("rendering status page", zap.Error(err))
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
