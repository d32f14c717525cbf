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

	"wagate/internal/config"
	"wagate/internal/constants"
	"wagate/internal/database"
	"wagate/internal/events"
	"wagate/internal/retry"
	"wagate/internal/service"
	"wagate/internal/tracing"
	"wagate/pkg/chatbot"
	"wagate/pkg/engine"
	"wagate/pkg/engine/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	envFile = flag.String("env-file", "", "Path to an optional .env file")
	version = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wagate %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", *envFile, err)
		}
	} else {
		// Optional by convention; environment variables win either way.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wagate")

	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    "wagate",
		ServiceVersion: Version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultBackoffMaxMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.DatabaseURI)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	if creds, err := db.GetAllCredentials(ctx, cfg.SessionName); err != nil {
		logger.Warnf("Failed to inspect stored credentials: %v", err)
	} else if len(creds) == 0 {
		logger.Info("No stored credentials, a pairing QR will be issued")
	} else {
		logger.WithField("credentials", len(creds)).Info("Stored credentials found")
	}

	dispatcher := events.NewDispatcher()
	contactService := service.NewContactService(db, logger)

	clientFactory := func() (types.Client, error) {
		return engine.NewClient(types.ClientConfig{
			EngineURL:   cfg.EngineURL,
			SessionName: cfg.SessionName,
		}, logger), nil
	}

	sessionManager := service.NewSessionManager(cfg.SessionName, clientFactory, db, contactService, dispatcher, logger)
	if err := sessionManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sessionManager.Stop()

	if cfg.ChatBotURL != "" {
		botClient := chatbot.NewClientWithLogger(cfg.ChatBotURL, &http.Client{
			Timeout: time.Duration(constants.DefaultChatBotTimeoutSec) * time.Second,
		}, logger)
		registerChatBot(dispatcher, botClient, cfg, logger)
		logger.Info("ChatBot reply handler registered")
	}

	scheduler := service.NewScheduler(contactService, cfg.RetentionDays, cfg.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, sessionManager, dispatcher, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
