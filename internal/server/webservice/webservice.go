// Package webservice provides an HTTP server that handles incoming build report and artifact uploads and retrieving version information.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/droidforge/droidforge/internal/server/shared/metrics"
	"github.com/droidforge/droidforge/internal/server/webservice/handlers"
	"github.com/droidforge/droidforge/internal/server/webservice/middleware"
	wsmetrics "github.com/droidforge/droidforge/internal/server/webservice/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer    *http.Server
	metricsServer *metrics.Server
	cm            dConfigManager

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath   string
	ReportsDir   string
	ArtifactsDir string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
	MaxUploadBytes int
	MaxApkBytes    int64

	RateLimitPerSecond float64
	RateBurst          int

	ListenHost string
	ListenPort int

	MetricsHost string
	MetricsPort int
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	IsAllowed(string) bool
}

// New creates a new Server instance with the given config manager and static configuration.
func New(ctx context.Context, cm dConfigManager, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	registry := prometheus.NewRegistry()
	endpointMW := wsmetrics.NewEndpointMiddleware(registry)
	muxMW := wsmetrics.NewMuxMiddleware(registry)
	limiter := middleware.New(rate.Limit(sc.RateLimitPerSecond), sc.RateBurst)

	uploadHandler := handlers.NewUpload(cm, sc.ReportsDir, int64(sc.MaxUploadBytes))
	artifactHandler := handlers.NewArtifact(cm, sc.ArtifactsDir, sc.MaxApkBytes)
	mux := http.NewServeMux()
	mux.Handle("POST /upload/{pipeline}", endpointMW.Wrap("upload", wsmetrics.HandlerApplyLabels(uploadHandler)))
	mux.Handle("POST /upload/{pipeline}/artifact/{run}/{name}", endpointMW.Wrap("artifact", wsmetrics.HandlerApplyLabels(artifactHandler)))
	mux.Handle("GET /version", endpointMW.Wrap("version", http.HandlerFunc(handlers.VersionHandler)))

	handler := muxMW.Wrap("mux", limiter.RateLimitMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(handler, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	s.metricsServer = metrics.New(metrics.Config{
		Host:         sc.MetricsHost,
		Port:         sc.MetricsPort,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, registry)

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	metricsErr := make(chan error, 1)
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
		err := s.httpServer.Shutdown(s.ctx)
		if errM := s.metricsServer.Shutdown(s.ctx); errM != nil {
			err = errors.Join(err, errM)
		}
		if err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		errM := s.metricsServer.Close()
		s.cancel()
		if err != nil {
			slog.Error("Server encountered error", "err", err)
			return errors.Join(err, errM)
		}
		// unlikely: ListenAndServe returned nil
		return errM

	case err := <-metricsErr:
		if err != nil {
			slog.Error("Metrics server encountered error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()

		return errors.Join(err, errC)

	case err := <-watchErr:
		if err != nil {
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
		}
		errC := errors.Join(s.httpServer.Close(), s.metricsServer.Close())
		s.cancel()

		return errors.Join(err, errC)
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.metricsServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}
