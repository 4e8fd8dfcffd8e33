// Package web provides an HTTP status server for the printer-watchdog daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/printer-watchdog/internal/status"
)

// healthyState is the controller state reported as healthy by /healthz.
const healthyState = "ACTIVE"

// Server serves the status page, its JSON form and a health probe.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("/", readOnly(s.handleIndex))
	mux.HandleFunc("/index.json", readOnly(s.handleJSON))
	mux.HandleFunc("/healthz", readOnly(s.handleHealth))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server, waiting for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects everything but GET and HEAD.
func readOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

// handleHealth answers 200 while the watchdog is polling and guarding the
// button, 503 otherwise (starting, reloading, failed or stopped).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.tracker.Snapshot().State
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if state != healthyState {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if state == "" {
		state = "UNKNOWN"
	}
	w.Write([]byte(state + "\n"))
}
