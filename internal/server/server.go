// Package server wires config, logging, metrics, auth, the broker, the
// audit chain, and both fan-out transports into the HTTP surface the
// core process exposes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cncaiprojem/progressd/internal/audit"
	"github.com/cncaiprojem/progressd/internal/auth"
	"github.com/cncaiprojem/progressd/internal/broker"
	"github.com/cncaiprojem/progressd/internal/broker/natsbackend"
	"github.com/cncaiprojem/progressd/internal/broker/redisbackend"
	"github.com/cncaiprojem/progressd/internal/config"
	"github.com/cncaiprojem/progressd/internal/fanout"
	"github.com/cncaiprojem/progressd/internal/jobs"
	"github.com/cncaiprojem/progressd/internal/logging"
	"github.com/cncaiprojem/progressd/internal/metrics"
	wsTransport "github.com/cncaiprojem/progressd/pkg/websocket"
)

type Server struct {
	cfg *config.Config
	log zerolog.Logger

	metrics    *metrics.Metrics
	jwtManager *auth.JWTManager

	backendCloser io.Closer
	broker        *broker.Broker
	auditChain    *audit.Chain
	jobsRepo      *jobs.MemoryRepository
	registry      *fanout.Registry
	hub           *wsTransport.Hub

	httpServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	log := logging.New("info")
	m := metrics.New()
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiration)*time.Second)

	backend, closer, err := dialBrokerBackend(ctx, cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("server: dial broker backend: %w", err)
	}
	br := broker.New(backend, log, broker.WithMetrics(m))

	store := dialAuditStore(cfg, log)
	chain := audit.NewChain(store, log)

	jobsRepo := jobs.NewMemoryRepository()
	registry := fanout.NewRegistry()
	hub := wsTransport.NewHub(log, registry)

	s := &Server{
		cfg:           cfg,
		log:           log,
		metrics:       m,
		jwtManager:    jwtManager,
		backendCloser: closer,
		broker:        br,
		auditChain:    chain,
		jobsRepo:      jobsRepo,
		registry:      registry,
		hub:           hub,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.setupHTTPServer()
	return s, nil
}

func dialBrokerBackend(ctx context.Context, cfg *config.Config) (broker.Backend, io.Closer, error) {
	switch cfg.Broker.Backend {
	case "nats":
		be, err := natsbackend.Dial(ctx, natsbackend.Config{
			URL:        cfg.Broker.NATS.URL,
			BucketName: cfg.Broker.NATS.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		return be, closerFunc(be.Close), nil
	default:
		be := redisbackend.Dial(redisbackend.Config{
			Addr:     cfg.Broker.Redis.Addr,
			Password: cfg.Broker.Redis.Password,
			DB:       cfg.Broker.Redis.DB,
		})
		return be, nil, nil
	}
}

func dialAuditStore(cfg *config.Config, log zerolog.Logger) audit.Store {
	if cfg.Audit.Store == "postgres" && cfg.Audit.PostgresDSN != "" {
		// Connecting here would require a pgxpool.New(ctx, dsn) call at
		// startup; left to cmd/progressd, which owns process lifetime and
		// can fail fast on a bad DSN. Server falls back to MemoryStore so
		// it always has a usable Store even when only partially wired.
		log.Warn().Msg("audit.store=postgres requires a pool from cmd/progressd; falling back to in-memory store")
	}
	return audit.NewMemoryStore()
}

// WithPostgresAudit lets cmd/progressd swap in a real pgx-backed store
// once it has dialed the pool, since pool construction needs its own
// context and error handling at process startup.
func (s *Server) WithPostgresAudit(store audit.Store) {
	s.auditChain = audit.NewChain(store, s.log)
}

type closerFunc func()

func (c closerFunc) Close() error {
	c()
	return nil
}

func (s *Server) setupHTTPServer() {
	mux := http.NewServeMux()

	fanoutDeps := fanout.StreamHandlerDeps{
		Broker:   s.broker,
		Jobs:     s.jobsRepo,
		Registry: s.registry,
		Log:      s.log,
	}

	mux.HandleFunc("GET /api/v1/jobs/{job_id}/progress/stream", s.jwtManager.AuthMiddleware(fanout.StreamHandler(fanoutDeps)))
	mux.HandleFunc("GET /api/v1/jobs/{job_id}/progress", s.jwtManager.AuthMiddleware(fanout.SnapshotHandler(fanoutDeps)))
	mux.HandleFunc("GET /ws/jobs/{job_id}/progress", func(w http.ResponseWriter, r *http.Request) {
		wsTransport.ServeWS(s.hub, s.broker, s.jobsRepo, s.jwtManager, s.log, w, r)
	})
	mux.HandleFunc("GET /ws/connections/stats", s.jwtManager.AuthMiddleware(fanout.StatsHandler(s.registry)))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /auth/token", s.handleGenerateToken)

	if s.cfg.Metrics.EnablePrometheus {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"sessions":   s.registry.Stats(),
		"goroutines": runtime.NumGoroutine(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.jwtManager.GenerateTestToken()
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the hub, the system metrics collector, and the HTTP
// server, then blocks until an interrupt signal triggers shutdown.
func (s *Server) Start() error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.collectSystemMetrics()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server error")
		}
	}()

	s.waitForShutdown()
	return nil
}

func (s *Server) collectSystemMetrics() {
	interval := time.Duration(s.cfg.Metrics.UpdateInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sys := metrics.NewSystemMetrics()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			sys.Update()
			s.metrics.UpdateGoroutinesCount(runtime.NumGoroutine())
			s.metrics.UpdateMemoryUsage(uint64(sys.GetMemoryMB() * 1024 * 1024))
			s.metrics.UpdateCPUUsage(sys.GetCPUPercent())
			s.metrics.ObserveSessions(s.registry)
		}
	}
}

func (s *Server) waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	s.log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	s.Shutdown()
}

func (s *Server) Shutdown() {
	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("http server shutdown error")
	}
	if s.backendCloser != nil {
		if err := s.backendCloser.Close(); err != nil {
			s.log.Error().Err(err).Msg("broker backend close error")
		}
	}
	s.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info().Msg("server shutdown complete")
	case <-ctx.Done():
		s.log.Warn().Msg("server shutdown timed out")
	}
}
