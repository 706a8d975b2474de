package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/speech-practice/internal/config"
	"github.com/lexiqai/speech-practice/internal/observability"
	"github.com/lexiqai/speech-practice/internal/resilience"
	"github.com/lexiqai/speech-practice/internal/skill"
	"github.com/lexiqai/speech-practice/internal/stream"
	"github.com/lexiqai/speech-practice/internal/verify"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Bool("skill_id_set", cfg.SkillID != "").
		Bool("verify_requests", cfg.VerifyRequests).
		Bool("stream_enabled", cfg.StreamEnabled).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech practice service starting")

	if cfg.SkillID == "" {
		logger.Warn().Msg("ALEXA_SKILL_ID is empty, requests from any skill are accepted")
	}
	if !cfg.VerifyRequests {
		logger.Warn().Msg("Request signature verification is disabled")
	}

	mux, streams := newMux(cfg)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/alexa", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked stream connections are not closed by server.Shutdown
	if streams != nil {
		if err := streams.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Practice streams did not close in time")
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}

// newMux wires the service routes. The returned stream server is nil when
// streams are disabled.
func newMux(cfg *config.Config) (*http.ServeMux, *stream.Server) {
	logger := observability.GetLogger()
	mux := http.NewServeMux()
	checks := map[string]observability.HealthCheckFunc{}

	opts := []skill.HTTPOption{skill.WithMaxBodyBytes(cfg.MaxRequestBytes)}
	if cfg.VerifyRequests {
		fetcher := verify.NewHTTPCertFetcher(verify.FetcherConfig{
			Timeout:      cfg.CertTimeout(),
			MaxFailures:  cfg.CircuitBreakerMaxFailures,
			ResetTimeout: cfg.BreakerResetTimeout(),
			Retry: &resilience.RetryConfig{
				MaxAttempts:       cfg.RetryMaxAttempts,
				InitialBackoff:    cfg.RetryBackoff(),
				MaxBackoff:        5 * time.Second,
				BackoffMultiplier: 2.0,
			},
		})
		opts = append(opts, skill.WithVerifier(verify.NewVerifier(fetcher), cfg.TimestampTolerance()))
		checks["alexa_certs"] = fetcher.HealthCheck
	}

	// Skill endpoint
	mux.Handle("/alexa", skill.NewHTTPHandler(skill.NewPracticeSkill(cfg.SkillID), opts...))

	// Practice stream
	var streams *stream.Server
	if cfg.StreamEnabled {
		streamCfg := stream.DefaultConfig()
		streamCfg.MaxMessageBytes = cfg.StreamMaxMessageBytes
		streams = stream.NewServer(streamCfg)
		mux.Handle("/streams/practice", streams)
	}

	// Health and readiness
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	return mux, streams
}
