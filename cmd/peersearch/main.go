package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/peersearch/internal/config"
	dbRedis "github.com/kailas-cloud/peersearch/internal/db/redis"
	"github.com/kailas-cloud/peersearch/internal/domain"
	"github.com/kailas-cloud/peersearch/internal/extract"
	"github.com/kailas-cloud/peersearch/internal/index"
	logpkg "github.com/kailas-cloud/peersearch/internal/logger"
	"github.com/kailas-cloud/peersearch/internal/metrics"
	"github.com/kailas-cloud/peersearch/internal/node"
	documentrepo "github.com/kailas-cloud/peersearch/internal/repository/document"
	"github.com/kailas-cloud/peersearch/internal/session"
	chiTransport "github.com/kailas-cloud/peersearch/internal/transport/chi"
	"github.com/kailas-cloud/peersearch/internal/transport/peer"
	documentuc "github.com/kailas-cloud/peersearch/internal/usecase/document"
	healthuc "github.com/kailas-cloud/peersearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/peersearch/internal/usecase/search"
	"github.com/kailas-cloud/peersearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	self := domain.PeerID(cfg.Node.Name)
	logger = logger.With(zap.Stringer("node", self))
	logger.Info("Starting peersearch node",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.Int("peers", len(cfg.Node.Peers)),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	pool, err := ants.NewPool(cfg.Extract.Workers)
	if err != nil {
		logger.Fatal("Failed to create extraction pool", zap.Error(err))
	}
	defer pool.Release()

	// Storage and local index
	idx := index.New(cfg.Node.FilterSize)
	docRepo := documentrepo.New(store, cfg.Storage.KeyPrefix)
	docSvc := documentuc.New(docRepo, idx, logger)

	if _, err := docSvc.Reindex(ctx); err != nil {
		logger.Fatal("Failed to rebuild local index", zap.Error(err))
	}

	searchSvc := searchuc.New(idx, docRepo, extract.New(), pool, logger).
		WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit)

	// Network: peer stack owned by the actor, sessions fed by its streams
	peers := make([]peer.Peer, len(cfg.Node.Peers))
	for i, p := range cfg.Node.Peers {
		peers[i] = peer.Peer{ID: domain.PeerID(p.Name), URL: p.URL}
	}
	stack := peer.New(peer.Config{
		Self:            self,
		Peers:           peers,
		RefreshInterval: time.Duration(cfg.Node.FilterRefreshSec) * time.Second,
		Concurrency:     cfg.Node.PeerConcurrency,
		Buffer:          cfg.Node.StreamBuffer,
	}, searchSvc, &http.Client{
		Timeout: time.Duration(cfg.Node.PeerTimeoutMs) * time.Millisecond,
	}, logger.Named("peer"))

	actor := node.New(stack, logger.Named("actor"))
	registrar := session.NewRegistrar(self, logger.Named("sessions"))
	defer registrar.Close()

	searchSvc.WithNetwork(actor, registrar, node.SearchConfig{
		Timeout:           time.Duration(cfg.Node.SearchTimeoutMs) * time.Millisecond,
		MaxResultsPerPeer: cfg.Node.MaxResultsPerPeer,
	})

	healthSvc := healthuc.New(store, actor)

	server := chiTransport.NewServer(docSvc, searchSvc, idx, healthSvc, self, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware())
	server.Handler(r, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	sessionsCfg := cfg.Sessions
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return actor.Run(gctx) })
	g.Go(func() error { return stack.Run(gctx) })
	g.Go(func() error {
		return registrar.RunSweeper(gctx,
			time.Duration(sessionsCfg.SweepIntervalSec)*time.Second,
			time.Duration(sessionsCfg.RetentionSec)*time.Second,
		)
	})
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		actor.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Node stopped with error", zap.Error(err))
		return
	}
	logger.Info("Node stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", chi.RouteContext(r.Context()).RoutePattern()),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
