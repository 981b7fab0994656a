// Package httpapi serves the JSON API consumed by the price dashboard.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"fuel-price-tracker/internal/config"
	"fuel-price-tracker/internal/metrics"
	"fuel-price-tracker/internal/service"
)

// Server wires the HTTP routes to the tracker service.
type Server struct {
	cfg      config.HTTPConfig
	svc      *service.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	handler  http.Handler
}

// New builds the API server and its route table.
func New(cfg config.HTTPConfig, svc *service.Service, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		logger:  logger.With().Str("component", "httpapi").Logger(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/prices/latest", s.handleLatest)
	mux.HandleFunc("GET /api/prices/history", s.handleHistory)
	mux.HandleFunc("GET /api/prices/buckets", s.handleBuckets)
	mux.HandleFunc("GET /api/prices/changes", s.handleChanges)
	mux.HandleFunc("POST /api/scrape", s.handleScrape)
	mux.HandleFunc("GET /api/scrape", s.handleScrape)
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.Handle("GET /metrics", m.Handler())

	s.handler = s.withCORS(s.withObservability(mux))
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HTTPServer returns an *http.Server configured from HTTPConfig.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

func (s *Server) pushInterval() time.Duration {
	if s.cfg.PushInterval <= 0 {
		return 30 * time.Second
	}
	return s.cfg.PushInterval
}
