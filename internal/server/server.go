// Package server exposes the MICR pipeline over HTTP: POST /v1/preprocess,
// POST /v1/scan, and a Prometheus /metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"micrscan/internal/config"
	"micrscan/internal/micrscan"
)

// Server wraps an *http.Server bound to a micrscan.Session.
type Server struct {
	session    *micrscan.Session
	cfg        config.ServerConfig
	log        zerolog.Logger
	mux        *http.ServeMux
	httpServer *http.Server
}

// New builds a Server with its routes registered.
func New(session *micrscan.Session, cfg config.ServerConfig, log zerolog.Logger) *Server {
	s := &Server{session: session, cfg: cfg, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/v1/preprocess", s.withMiddleware("preprocess", s.handlePreprocess))
	s.mux.HandleFunc("/v1/scan", s.withMiddleware("scan", s.handleScan))
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// ListenAndServe starts the HTTP server on cfg.Addr and blocks until it
// stops or Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, and the underlying session.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.session != nil {
		s.session.Close()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// withMiddleware enforces the request-size cap and records per-endpoint
// request count/duration metrics.
func (s *Server) withMiddleware(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestSize)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()
		next(rw, r)
		duration := time.Since(start)

		requestsTotal.WithLabelValues(endpoint, http.StatusText(rw.statusCode)).Inc()
		processingDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	}
}

func (s *Server) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req micrscan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.session.Preprocess(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req micrscan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.session.Scan(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if resp.Overlap {
		overlapCorrectionsTotal.Inc()
	}
	for _, name := range req.Translators {
		if _, ok := resp.Translators[name]; !ok {
			translatorErrorsTotal.WithLabelValues(name).Inc()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Debug().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
