package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simplco/botkeeper/pkg/logging"
)

// HealthFunc supplies the /healthz payload
type HealthFunc func() interface{}

// Server exposes /metrics and /healthz for the harness. It is optional;
// the deployment enables it when an orchestrator or Prometheus scraper is
// around to look.
type Server struct {
	srv *http.Server
	log *logging.Logger
}

// NewServer builds the HTTP server on the given listen address
func NewServer(addr string, m *Metrics, health HealthFunc, log *logging.Logger) *Server {
	r := mux.NewRouter()

	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		var payload interface{} = map[string]string{"status": "ok"}
		if health != nil {
			payload = health()
		}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}).Methods(http.MethodGet)

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		log: log.WithComponent("metrics"),
	}
}

// Handler returns the server's HTTP handler (used by tests)
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in the background
func (s *Server) Start() {
	s.log.Info("metrics server listening", map[string]interface{}{
		"addr": s.srv.Addr,
	})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("metrics server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
