// Package main provides the turnstiled entry point.
//
// Usage:
//
//	turnstiled           start the HTTP API server
//	turnstiled solve     run a single solve and print the result as JSON
//	turnstiled tui       interactive solve UI
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solvarr/turnstiled/internal/browser"
	"github.com/solvarr/turnstiled/internal/config"
	"github.com/solvarr/turnstiled/internal/handlers"
	"github.com/solvarr/turnstiled/internal/metrics"
	"github.com/solvarr/turnstiled/internal/middleware"
	"github.com/solvarr/turnstiled/internal/scheduler"
	"github.com/solvarr/turnstiled/internal/selectors"
	"github.com/solvarr/turnstiled/internal/solver"
	"github.com/solvarr/turnstiled/pkg/version"
)

func main() {
	// .env is optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel)

	cfg.Validate()

	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "serve":
		runServe(cfg)
	case "solve":
		runSolve(cfg, args)
	case "tui":
		runTUI(cfg)
	case "help", "-h", "--help":
		fmt.Println("usage: turnstiled [serve|solve|tui]")
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\nusage: turnstiled [serve|solve|tui]\n", cmd)
		os.Exit(2)
	}
}

// buildSolver wires the browser pool, selector manager, and solver together.
// The caller owns the returned pool and manager and must close both.
func buildSolver(cfg *config.Config) (*browser.Pool, *selectors.Manager, *solver.Solver, error) {
	pool := browser.NewPool(cfg)

	sel, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		_ = pool.Close()
		return nil, nil, nil, fmt.Errorf("selectors: %w", err)
	}

	return pool, sel, solver.New(pool, sel, cfg), nil
}

func runServe(cfg *config.Config) {
	printBanner()

	pool, sel, slv, err := buildSolver(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize solver")
	}

	// Warm one instance so the first request does not pay the launch cost
	prewarmCtx, prewarmCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := pool.Prewarm(prewarmCtx, 1); err != nil {
		log.Warn().Err(err).Msg("Browser prewarm failed, instances will be created on demand")
	}
	prewarmCancel()

	registry := scheduler.NewRegistry(cfg.MaxResults)
	if cfg.ResultsPath != "" {
		if err := registry.Load(cfg.ResultsPath); err != nil {
			log.Warn().Err(err).Str("path", cfg.ResultsPath).Msg("Failed to load persisted results")
		}
	}

	// Background tasks have no caller deadline, so the task timeout covers
	// both the pool wait and the solve itself.
	taskTimeout := cfg.SolveTimeout + cfg.PoolAcquireTimeout
	dispatcher := scheduler.NewDispatcher(registry, slv.Solve, taskTimeout)

	handler := handlers.New(dispatcher, registry, pool, cfg)
	router := handlers.NewRouter(handler)

	// Middleware chain, outermost first
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery,
		middleware.Logging,
		middleware.SecurityHeaders,
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}),
	}

	var rateLimiter *middleware.RateLimiterMiddleware
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		rateLimiter = middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		chain = append(chain, rateLimiter.Handler())
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      middleware.Chain(chain...)(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: taskTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel to signal shutdown to background tasks
	stopCh := make(chan struct{})

	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartMemoryCollector(10*time.Second, stopCh)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())

		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Int("port", cfg.MetricsPort).Msg("Metrics server started")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("address", addr).
			Int("max_browsers", cfg.MaxBrowsers).
			Int("pages_per_browser", cfg.PagesPerBrowser).
			Bool("metrics_enabled", cfg.MetricsEnabled).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Msg("turnstiled is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests first, then drain in-flight tasks, then
	// persist results and release the browsers.
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics server shutdown error")
		}
	}

	if err := dispatcher.Close(); err != nil {
		log.Error().Err(err).Msg("Dispatcher close error")
	}

	if cfg.ResultsPath != "" {
		if err := registry.Save(cfg.ResultsPath); err != nil {
			log.Error().Err(err).Str("path", cfg.ResultsPath).Msg("Failed to persist results")
		}
	}

	if rateLimiter != nil {
		rateLimiter.Close()
	}

	if err := sel.Close(); err != nil {
		log.Error().Err(err).Msg("Selector manager close error")
	}

	if err := pool.Close(); err != nil {
		log.Error().Err(err).Msg("Browser pool close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := ` _                        _   _ _          _
| |_ _   _ _ __ _ __  ___| |_(_) | ___  __| |
| __| | | | '__| '_ \/ __| __| | |/ _ \/ _' |
| |_| |_| | |  | | | \__ \ |_| | |  __/ (_| |
 \__|\__,_|_|  |_| |_|___/\__|_|_|\___|\__,_|`

	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB454")).Bold(true)
	fmt.Println(style.Render(banner))

	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting turnstiled")
}
