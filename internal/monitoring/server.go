package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shizukutanaka/mate/internal/overlay"
)

// Config defines the diagnostics server configuration
type Config struct {
	Enabled     bool   `yaml:"enabled"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsPath string `yaml:"metrics_path"`
}

// DefaultConfig returns the default diagnostics configuration
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		ListenAddr:  "127.0.0.1:9090",
		MetricsPath: "/metrics",
	}
}

// NodeSource is the view of a node the server reports on
type NodeSource interface {
	ID() overlay.NodeID
	Contacts(ctx context.Context) ([]overlay.ContactInfo, error)
}

// ContactView is one routing table entry as served by /contacts
type ContactView struct {
	overlay.ContactInfo
	Age string `json:"age"`
}

// Server exposes metrics and routing table diagnostics over HTTP
type Server struct {
	logger   *zap.Logger
	config   Config
	node     NodeSource
	gatherer prometheus.Gatherer
	router   *mux.Router
	server   *http.Server
}

// NewServer creates a diagnostics server for node
func NewServer(logger *zap.Logger, config Config, node NodeSource, gatherer prometheus.Gatherer) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = DefaultConfig().ListenAddr
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	s := &Server{
		logger:   logger,
		config:   config,
		node:     node,
		gatherer: gatherer,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods("GET")
	s.router.HandleFunc("/contacts", s.handleContacts).Methods("GET")
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Diagnostics server disabled")
		return nil
	}

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info("Starting diagnostics server",
			zap.String("address", listener.Addr().String()),
			zap.String("metrics_path", s.config.MetricsPath),
		)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("diagnostics server error: %w", err)
		}
		return nil
	}
}

// Stop shuts the server down
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown diagnostics server: %w", err)
	}

	s.logger.Info("Diagnostics server stopped")
	return nil
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := s.node.Contacts(r.Context())
	if err != nil {
		s.logger.Warn("Failed to snapshot contacts", zap.Error(err))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	views := make([]ContactView, 0, len(contacts))
	for _, c := range contacts {
		views = append(views, ContactView{
			ContactInfo: c,
			Age:         humanize.Time(c.LastActive),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"node_id":  s.node.ID(),
		"count":    len(views),
		"contacts": views,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.node.Contacts(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
