package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/clinic-interpreter/backend/internal/config"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/handler"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/handler/health"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/handler/interpreter"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/logging"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/model/phrasebook"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/observe"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/resilience"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/ai"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/conversation"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/summary"
	"github.com/zhouzirui/clinic-interpreter/backend/internal/service/translation"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logging.Preinit()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Warn("Failed to load .env file, continuing with system environment variables only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level)

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	metrics, metricsHandler, shutdownMetrics, err := setupMetrics(cfg.Server)
	if err != nil {
		return err
	}
	defer shutdownMetrics()

	book := phrasebook.Seed()
	if cfg.Interpreter.PhrasebookPath != "" {
		book, err = phrasebook.LoadFile(cfg.Interpreter.PhrasebookPath)
		if err != nil {
			return err
		}
		slog.Info("Phrasebook loaded", "path", cfg.Interpreter.PhrasebookPath, "pairs", len(book.Pairs))
	}
	phrases := phrasebook.NewMemoryStore(book)

	gateways := setupGateways(ctx, cfg, phrases, metrics)

	registry := conversation.NewRegistry(conversation.Deps{
		Translator: gateways.translator,
		Summarizer: gateways.summarizer,
		Phrases:    phrases,
		Languages: conversation.Languages{
			Doctor:  cfg.Interpreter.DoctorLanguage,
			Patient: cfg.Interpreter.PatientLanguage,
		},
		Metrics: metrics,
	})

	router := handler.NewRouter(
		interpreter.New(registry, interpreter.NewDispatcher(metrics)),
		health.New(gateways.mode, gateways.checkers...),
		metricsHandler,
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("Interpreter backend listening",
		"addr", cfg.Server.Addr,
		"mode", gateways.mode,
		"doctor", cfg.Interpreter.DoctorLanguage,
		"patient", cfg.Interpreter.PatientLanguage,
	)
	return runServer(ctx, srv)
}

type gatewaySet struct {
	mode       string
	translator translation.Gateway
	summarizer summary.Gateway
	checkers   []health.Checker
}

// setupGateways chooses live or fallback gateways once, based on which model
// credentials are present.
func setupGateways(ctx context.Context, cfg *config.Config, phrases phrasebook.Store, metrics *observe.Metrics) gatewaySet {
	fallback := translation.NewFallback(phrases, metrics)
	set := gatewaySet{
		mode:       "fallback",
		translator: fallback,
		summarizer: summary.NewFallback(metrics),
	}

	if !cfg.AI.Enabled() {
		slog.Info("No model credentials configured, using fallback translation and summaries")
		return set
	}

	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		slog.Warn("Failed to initialize live model, using fallback gateways", "error", err)
		return set
	}

	guarded := ai.NewGuarded(completer, resilience.NewBreaker(resilience.BreakerConfig{
		Name:         completer.Name(),
		MaxFailures:  cfg.Gateway.BreakerFailures,
		ResetTimeout: cfg.Gateway.BreakerReset,
	}))

	set.mode = "live"
	set.translator = translation.NewLive(guarded, fallback, cfg.Gateway.Timeout, metrics)
	set.summarizer = summary.NewLive(guarded, cfg.Gateway.Timeout, metrics)
	set.checkers = append(set.checkers, health.Checker{
		Name: "live_model",
		Check: func(context.Context) error {
			if guarded.BreakerState() == resilience.StateOpen {
				return resilience.ErrCircuitOpen
			}
			return nil
		},
	})

	slog.Info("Live model initialized", "backend", completer.Name(), "timeout", cfg.Gateway.Timeout)
	return set
}

// setupMetrics returns the recorder, the /metrics handler (nil when disabled)
// and a shutdown hook.
func setupMetrics(serverCfg config.ServerConfig) (*observe.Metrics, http.Handler, func(), error) {
	if !serverCfg.MetricsEnabled {
		metrics, err := observe.NewMetrics(noop.NewMeterProvider())
		return metrics, nil, func() {}, err
	}

	mp, err := observe.InitProvider()
	if err != nil {
		return nil, nil, nil, err
	}

	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		return nil, nil, nil, err
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			slog.Warn("Failed to shut down meter provider", "error", err)
		}
	}
	return metrics, promhttp.Handler(), shutdown, nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
