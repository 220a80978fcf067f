package server

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"photo-vault/internal/database"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Phase        string `json:"phase,omitempty"`
	Registry     string `json:"registry"`
	GoVersion    string `json:"goVersion"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck reports 200 when the registry answers, 503 otherwise.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       statusHealthy,
		Version:      s.deps.Version,
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		Registry:     "ok",
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if s.deps.Progress != nil {
		resp.Phase = s.deps.Progress.Snapshot().Phase
	}

	code := http.StatusOK
	if s.deps.Stats == nil {
		resp.Status, resp.Registry = statusDegraded, "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if _, err := s.deps.Stats.RegistryStats(ctx); err != nil {
			resp.Status, resp.Registry = statusDegraded, err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSONCode(w, code, resp)
}

// LivenessCheck always returns 200 while the process is serving.
func (s *Server) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// HEAD gets headers only
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// GetVersion returns the build version.
func (s *Server) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, http.StatusOK, map[string]string{
		"version":   s.deps.Version,
		"goVersion": runtime.Version(),
	})
}

// GetProgress returns the current pass snapshot.
func (s *Server) GetProgress(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Progress == nil {
		writeJSONError(w, "progress tracking not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSONCode(w, http.StatusOK, s.deps.Progress.Snapshot())
}

// GetStats returns registry totals.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		writeJSONError(w, "registry not available", http.StatusServiceUnavailable)
		return
	}

	stats, err := s.deps.Stats.RegistryStats(r.Context())
	if err != nil {
		writeJSONError(w, "failed to read registry stats", http.StatusInternalServerError)
		return
	}
	writeJSONCode(w, http.StatusOK, stats)
}

// GetImage returns one registry row.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		writeJSONError(w, "registry not available", http.StatusServiceUnavailable)
		return
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, "invalid image id", http.StatusBadRequest)
		return
	}

	img, err := s.deps.Images.GetImage(r.Context(), id)
	switch {
	case errors.Is(err, database.ErrImageNotFound):
		writeJSONError(w, "image not found", http.StatusNotFound)
	case err != nil:
		writeJSONError(w, "failed to read image", http.StatusInternalServerError)
	default:
		writeJSONCode(w, http.StatusOK, img)
	}
}
