package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"Bloom/internal/backend"
	"Bloom/internal/bus"
	"Bloom/internal/chatbot"
	"Bloom/internal/config"
	"Bloom/internal/panel"
	"Bloom/internal/store"
	"Bloom/internal/stream"
	"Bloom/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// flags override the environment
	flag.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "BLOOM API base URL (default "+config.DefaultAPIURL+")")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the SQLite state database")
	flag.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Directory for logs, traces and metrics")
	flag.StringVar(&cfg.SessionID, "session-id", cfg.SessionID, "Resume an existing session by ID")
	flag.StringVar(&cfg.Module, "module", cfg.Module, "Module code to scope questions and uploads to")
	flag.StringVar(&cfg.BusURL, "bus-url", cfg.BusURL, "ws:// URL of a remote message bus")
	flag.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Characters revealed per streaming tick")
	flag.DurationVar(&cfg.StreamInterval, "stream-interval", cfg.StreamInterval, "Delay between streaming ticks")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "Timeout for API requests")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	flag.BoolVar(&cfg.Telemetry, "telemetry", cfg.Telemetry, "Export traces and metrics to the log directory")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		LogDir:          cfg.LogDir,
		MetricsInterval: cfg.MetricsInterval,
		Disabled:        !cfg.Telemetry,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "error", err)
		}
	}()
	tracer, meter := tel.Tracer, tel.Meter

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer st.Close()

	apiURL := cfg.APIURL
	if apiURL == "" {
		if apiURL, err = st.String(ctx, store.KeyAPIURL, config.DefaultAPIURL); err != nil {
			return err
		}
	}

	client := backend.NewClient(apiURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		backend.WithLogger(logger),
		backend.WithTracer(tracer),
		backend.WithMeter(meter),
	)

	term := chatbot.NewTerminal(os.Stdout)
	p := panel.New(term, client, st,
		panel.WithLogger(logger),
		panel.WithSession(cfg.SessionID),
		panel.WithModule(cfg.Module),
		panel.WithStreamOptions(
			stream.WithChunkSize(cfg.ChunkSize),
			stream.WithInterval(cfg.StreamInterval),
			stream.WithMeter(meter),
		),
	)
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize panel: %w", err)
	}
	if err := p.SetAPIURL(ctx, apiURL); err != nil {
		logger.Warn("failed to save API URL", "error", err)
	}

	if cfg.BusURL != "" {
		remote, err := bus.Dial(ctx, cfg.BusURL, logger)
		if err != nil {
			logger.Warn("continuing without remote message bus", "url", cfg.BusURL, "error", err)
		} else {
			defer remote.Close()
			defer p.Attach(remote)()
		}
	}

	logger.Info("bloom started",
		"api_url", client.BaseURL(),
		"session_id", p.SessionID(),
		"debug", cfg.Debug)

	// unblock the prompt on interrupt
	go func() {
		<-ctx.Done()
		os.Stdin.Close()
	}()

	bot := chatbot.NewChatBot(p, client, term, os.Stdin, logger, tracer)
	if err := bot.Run(ctx); err != nil {
		return err
	}

	logger.Info("bloom stopped", "session_id", p.SessionID())
	return nil
}
