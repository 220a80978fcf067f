package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"photo-vault/internal/database"
	"photo-vault/internal/logging"
	"photo-vault/internal/metrics"
	"photo-vault/internal/progress"
)

// ImageLookup resolves a registry row by id.
type ImageLookup interface {
	GetImage(ctx context.Context, id int64) (*database.ImageRecord, error)
}

// ProgressSource reports the state of the current pass.
type ProgressSource interface {
	Snapshot() progress.Snapshot
}

// Deps are the components the handlers read from. Any of them may be nil,
// in which case the matching endpoints report 503.
type Deps struct {
	Progress ProgressSource
	Stats    metrics.StatsProvider
	Images   ImageLookup
	Version  string
}

// Server is the operator HTTP server.
type Server struct {
	deps      Deps
	startTime time.Time
	srv       *http.Server
}

// New creates a Server listening on addr once Start is called.
func New(addr string, deps Deps) *Server {
	s := &Server{
		deps:      deps,
		startTime: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           requestLogger(s.Router()),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", s.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", s.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requestMetrics)
	api.HandleFunc("/progress", s.GetProgress).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.GetStats).Methods(http.MethodGet)
	api.HandleFunc("/images/{id:[0-9]+}", s.GetImage).Methods(http.MethodGet)

	return r
}

// Start listens in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	logging.Info("HTTP server listening on %s", ln.Addr())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
