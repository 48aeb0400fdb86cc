package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"reviewroom/auth"
	"reviewroom/internal"
	"reviewroom/moderation"
	"reviewroom/observability"
	"reviewroom/repositories"
	"reviewroom/runtime"
	"reviewroom/runtime/workers"
	"reviewroom/search"
	"reviewroom/services"
	"reviewroom/sink"
	"reviewroom/transport/rest"
	"reviewroom/transport/ws"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the hub and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := newLogger(config.LogLevel)

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		log.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	// 3. Moderation
	wordlists, err := moderation.LoadWordlists()
	if err != nil {
		return exitRuntime, fmt.Errorf("wordlist loading failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored words loaded for languages %v",
		len(wordlists.Words), wordlists.Languages))
	moderator, err := moderation.NewModerator(wordlists.Words, charReplacement)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderator build failed: %w", err)
	}

	// 4. Hub wiring
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	repository := repositories.NewDiscussionRepository(db, log, config.LimitMessages)
	index := search.NewMessageIndex(blugeWriter, log)
	router := runtime.NewRouter(log, registry, repository, moderator, metrics, config.BufferSize)

	fanout := workers.NewEventFanout(log, router.FanoutEvents(), config.SinkTimeout,
		sink.NewIndexSink(index, log))
	telemetry := workers.NewTelemetry(log, registry, metrics, config.MetricInterval)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(router, fanout, telemetry)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP surface: websocket + REST on the main port, inspector and
	// metrics on the debug port.
	tokens := auth.NewTokenManager(config.JWTSecret)
	service := services.NewDiscussionService(registry, router, repository, index)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.NewServer(log, service, tokens, metrics,
		config.ConnectionBufferSize).HandleWS)
	rest.NewHandlers(log, service, tokens).Register(mux)

	debugMux := internal.DebugMux(db, func() map[string]any {
		return map[string]any{
			"connections": registry.ConnCount(),
			"rooms":       registry.RoomCount(),
		}
	})
	debugMux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler: mux,
	}
	debugServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Host, config.DebugPort),
		Handler: debugMux,
	}

	errChan := make(chan error, 2)
	go func() {
		log.Info("Starting server", "address", server.Addr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()
	go func() {
		log.Info("Starting debug server", "address", debugServer.Addr)
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("debug server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = debugServer.Shutdown(shutdownCtx)

	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
