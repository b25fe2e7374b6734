// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package guardian is the HTTP face of the child content safety engine.
//
// The conversation orchestrator calls it before any text reaches the
// child. It owns the policy store, the engine, metrics and tracing, and
// serves the routes in package routes.
//
// # Usage
//
//	cfg, err := guardian.LoadConfig()
//	svc, err := guardian.New(cfg, logger, nil)
//	err = svc.Run(ctx) // returns after ctx is cancelled and requests drain
package guardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/AleutianAI/EmoRobCare/services/guardian/middleware"
	"github.com/AleutianAI/EmoRobCare/services/guardian/routes"
	"github.com/AleutianAI/EmoRobCare/services/policy_engine"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/AleutianAI/EmoRobCare/services/safety/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	serviceName     = "safety-guardian"
	shutdownTimeout = 10 * time.Second
)

// Service is the assembled guardian.
//
// # Thread Safety
//
// Safe for concurrent use after New returns. Run must be called at most
// once.
type Service struct {
	config   Config
	logger   *slog.Logger
	opts     extensions.ServiceOptions
	store    *policy_engine.Store
	engine   *safety.Engine
	registry *prometheus.Registry
	metrics  *observability.SafetyMetrics
	router   *gin.Engine

	tracerCleanup func(context.Context)
}

// New wires the policy store, metrics, engine, tracer and router.
//
// Fields of opts left nil, or opts itself, fall back to defaults: a
// StaticTokenAuthProvider when cfg.APIToken is set (NopAuthProvider
// otherwise) and an in-memory audit log of cfg.AlertCapacity critical
// alerts, which backs the alerts endpoint.
func New(cfg Config, logger *slog.Logger, opts *extensions.ServiceOptions) (*Service, error) {
	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{config: cfg, logger: logger}
	s.opts = defaultOptions(cfg)
	if opts != nil {
		if opts.AuthProvider != nil {
			s.opts.AuthProvider = opts.AuthProvider
		}
		if opts.AuditLogger != nil {
			s.opts.AuditLogger = opts.AuditLogger
		}
	}

	var err error
	s.store, err = policy_engine.OpenStore(cfg.PolicyFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load safety policy: %w", err)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = observability.NewSafetyMetrics(s.registry)
	s.metrics.SetPolicy(s.store.Current())
	s.store.OnReload(s.metrics.ObserveReload)

	if cfg.OTelEndpoint != "" {
		cleanup, err := initTracer(cfg.OTelEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	failure := safety.FailOpen
	if cfg.FailClosed {
		failure = safety.FailClosed
	}
	monitor := safety.NewMonitor(safety.MonitorConfig{
		Capacity: cfg.MonitorCapacity,
		Logger:   logger,
		Audit:    s.opts.AuditLogger,
	})
	s.engine = safety.New(s.store,
		safety.WithLogger(logger),
		safety.WithMonitor(monitor),
		safety.WithRecorder(s.metrics),
		safety.WithFailurePolicy(failure),
	)

	s.initRouter()

	logger.Info("Safety guardian initialized",
		"policy_version", s.store.Current().Version(),
		"policy_source", s.store.Current().Source(),
		"failure_policy", failure.String(),
		"auth_required", cfg.APIToken != "",
		"tracing", cfg.OTelEndpoint != "")
	return s, nil
}

func defaultOptions(cfg Config) extensions.ServiceOptions {
	opts := extensions.DefaultOptions().
		WithAudit(extensions.NewMemoryAuditLogger(cfg.AlertCapacity))
	if cfg.APIToken != "" {
		opts = opts.WithAuth(&extensions.StaticTokenAuthProvider{
			Token:    cfg.APIToken,
			ClientID: "orchestrator",
			Roles:    []string{"operator"},
		})
	}
	return opts
}

func (s *Service) initRouter() {
	s.router = gin.New()
	s.router.Use(gin.Recovery(), middleware.RequestLogger(s.logger))
	if s.tracerCleanup != nil {
		s.router.Use(otelgin.Middleware(serviceName))
	}

	var limiter *middleware.RateLimiter
	if s.config.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)
	}
	routes.SetupRoutes(s.router, routes.Deps{
		Engine:   s.engine,
		Options:  s.opts,
		Limiter:  limiter,
		Gatherer: s.registry,
	})
}

// Router returns the configured router, for tests.
func (s *Service) Router() *gin.Engine { return s.router }

// Engine returns the safety engine the routes serve.
func (s *Service) Engine() *safety.Engine { return s.engine }

// Store returns the live policy store.
func (s *Service) Store() *policy_engine.Store { return s.store }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
// When PolicyWatch is set, the policy file is watched for the same
// lifetime.
func (s *Service) Run(ctx context.Context) error {
	defer s.cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.config.PolicyWatch {
		go func() {
			if err := s.store.Watch(ctx); err != nil {
				s.logger.Error("Policy watcher stopped", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting safety guardian server", "port", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down safety guardian")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func (s *Service) cleanup() {
	if err := s.opts.AuditLogger.Flush(context.Background()); err != nil {
		s.logger.Warn("Audit flush failed", "error", err)
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// initTracer installs a global OTLP tracer provider exporting over
// insecure gRPC to endpoint.
func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", serviceName))

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		_ = conn.Close()
	}, nil
}
