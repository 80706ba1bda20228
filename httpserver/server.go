// Package httpserver exposes the optional deployment status API, active for
// the duration of a provisioning run. It lets fleet tooling watch a host
// converge without shelling in: /livez answers as soon as the provisioner is
// up, /readyz flips once the pipeline finishes, and /status returns the
// journaled step outcomes of the current run.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/atomic"

	"github.com/securenotes/provisioner/state"
)

// HTTPServerConfig configures the status server.
type HTTPServerConfig struct {
	ListenAddr string
	Log        *slog.Logger

	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server is the deployment status server.
type Server struct {
	cfg     *HTTPServerConfig
	log     *slog.Logger
	isReady atomic.Bool

	runID string
	store *state.Store

	srv *http.Server
}

// New creates a status server reporting on runID from the given journal.
func New(cfg *HTTPServerConfig, store *state.Store, runID string) *Server {
	srv := &Server{
		cfg:   cfg,
		log:   cfg.Log,
		runID: runID,
		store: store,
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return srv
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/status", srv.handleStatus)
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// SetReady marks the pipeline as finished; /readyz starts answering 200.
func (srv *Server) SetReady() {
	srv.isReady.Store(true)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"deploying"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// statusResponse is the JSON shape of /status.
type statusResponse struct {
	RunID string             `json:"run_id"`
	Run   *state.Run         `json:"run,omitempty"`
	Steps []state.StepRecord `json:"steps"`
}

func (srv *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{RunID: srv.runID}

	if srv.store != nil {
		run, err := srv.store.LastRun()
		if err != nil {
			http.Error(w, "could not read deployment journal", http.StatusInternalServerError)
			return
		}
		resp.Run = run

		steps, err := srv.store.Steps(srv.runID)
		if err != nil {
			http.Error(w, "could not read deployment journal", http.StatusInternalServerError)
			return
		}
		resp.Steps = steps
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		srv.log.Error("Could not encode status response", "err", err)
	}
}

// RunInBackground starts the listener.
func (srv *Server) RunInBackground() {
	go func() {
		srv.log.Info("Starting status server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.log.Error("Status server failed", "err", err)
		}
	}()
}

// Shutdown gracefully stops the listener.
func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful status server shutdown failed", "err", err)
	}
}
