package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"subdex/internal/market"
)

// Config holds server configuration.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
}

// Server exposes the market service over HTTP.
type Server struct {
	svc      *market.Service
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router
	handler  http.Handler
	http     *http.Server
}

// NewServer builds the router. A nil gatherer disables /metrics.
func NewServer(cfg Config, svc *market.Service, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		svc:      svc,
		gatherer: gatherer,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	s.registerRoutes()

	s.handler = s.router
	if len(cfg.CORSOrigins) > 0 {
		s.handler = handlers.CORS(
			handlers.AllowedOrigins(cfg.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(s.router)
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/pools", s.handleListPools).Methods(http.MethodGet)

	const pair = "/pools/{first}/{second}"
	r.HandleFunc(pair, s.handleGetPool).Methods(http.MethodGet)
	r.HandleFunc(pair+"/quote", s.handleQuote).Methods(http.MethodGet)
	r.HandleFunc(pair+"/observation", s.handleObservation).Methods(http.MethodGet)
	r.HandleFunc(pair+"/create", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc(pair+"/swap", s.handleSwap).Methods(http.MethodPost)
	r.HandleFunc(pair+"/invest", s.handleInvest).Methods(http.MethodPost)
	r.HandleFunc(pair+"/divest", s.handleDivest).Methods(http.MethodPost)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the router with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http listen", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
