package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/indexmode/pkg/version"
)

// StatusFunc returns a JSON-serializable snapshot of the session.
type StatusFunc func() any

// Server exposes /metrics, /status, /healthz and /version over HTTP.
type Server struct {
	addr   string
	status StatusFunc
	srv    *http.Server
}

// NewServer creates a server listening on addr once Run is called.
func NewServer(addr string, status StatusFunc) *Server {
	s := &Server{addr: addr, status: status}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/version", handleVersion).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("metrics server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var body any = map[string]string{}
	if s.status != nil {
		body = s.status()
	}
	writeJSON(w, body)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, version.GetInfo())
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
