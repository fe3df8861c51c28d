package main

import (
	"board-lab/contract"
	"board-lab/domain/event"
	"board-lab/infrastructure/http/server"
	"board-lab/internal"
	"board-lab/mention"
	"board-lab/moderation"
	"board-lab/observability"
	"board-lab/repositories"
	"board-lab/runtime"
	"board-lab/runtime/workers"
	"board-lab/search"
	"board-lab/services"
	"board-lab/store/badgerstore"
	"board-lab/store/memstore"
	"board-lab/store/redisstore"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle and centralizes
// error reporting, so every defer runs before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Store
	st, err := openStore(ctx, config, logger)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		// Releases the database lock and flushes buffers before the function returns.
		_ = st.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	defer func() {
		logger.Info("Closing Bluge...")
		_ = blugeWriter.Close()
	}()

	moderator, err := loadModerator(config, charReplacement, logger)
	if err != nil {
		return exitConfig, err
	}

	// 3. Setup Supervision & Services
	sup := workers.NewSupervisor(logger)
	hub := runtime.NewHub(logger, st, sup, config.HubConfig())
	monitoring := observability.NewMonitoringManager(logger)
	resolver := mention.NewNameResolver()
	index := search.NewChatIndex(blugeWriter, logger)
	dispatcher := services.NewNotificationDispatcher(logger, st, repositories.NewNotificationRepository(st, logger),
		resolver, hub, config.Backoff())

	events := make(chan event.DomainEvent, config.EventBufferSize)
	fanout := workers.NewEventFanout(logger, events, config.SinkTimeout, index, monitoring)
	capacity := workers.NewChannelCapacityWorker(logger,
		[]workers.NamedChannel{{Name: "domain_events", Channel: events}},
		monitoring, config.MetricInterval, config.LowCapacityThreshold)

	svc := server.Services{
		Registry:      services.NewSessionRegistry(logger, st, fanout),
		Canvas:        services.NewCanvasReplicator(logger, st, hub),
		Presence:      services.NewPresenceTracker(logger, st, hub),
		Chat:          services.NewChatChannel(logger, st, resolver, moderator, dispatcher, index, fanout, hub),
		Notifications: dispatcher,
	}

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 2)

	// 5. Start the workers (hub, event fan-out, channel sampling)
	workersDone := make(chan struct{})
	go func() {
		logger.Info("Starting supervisor...")
		sup.Add(hub, fanout, capacity).Run(ctx)
		close(workersDone)
	}()

	// 6. HTTP and gRPC health servers
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           server.NewServer(logger, svc, monitoring, config.WriteTimeout).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer, health := server.NewHealthServer()
	go func() {
		logger.Info("Starting gRPC health server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		stop()
		grpcServer.Stop()
		<-workersDone
		return exitRuntime, err
	}

	// 8. Graceful Shutdown
	// Streams end with the context, in-flight requests get ShutdownTimeout to finish.
	logger.Info("Shutting down gracefully...")
	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	grpcServer.GracefulStop()
	<-workersDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func openStore(ctx context.Context, config internal.Config, logger *slog.Logger) (contract.Store, error) {
	switch config.StoreBackend {
	case internal.BackendMemory:
		logger.Warn("Using the in-memory store, sessions are lost on restart")
		return memstore.New(logger), nil
	case internal.BackendRedis:
		st, err := redisstore.NewFromEnv(logger)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return st, nil
	default:
		db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
		if err != nil {
			return nil, fmt.Errorf("database opening failed: %w", err)
		}
		if logger.Enabled(ctx, slog.LevelDebug) {
			endpoint := "/inspect"
			url := fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint)
			logger.Info("Debug Badger inspector available", "url", url)
			database.StartDebugServer(db, config.DebugPort, endpoint, StoreMapper)
		}
		return badgerstore.New(logger, db), nil
	}
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

// loadModerator reads every dictionary of CENSORED_WORDS_DIR. Without a
// directory, chat is left uncensored.
func loadModerator(config internal.Config, charReplacement rune, logger *slog.Logger) (moderation.Moderator, error) {
	if config.CensoredWordsDir == "" {
		logger.Info("No censored words directory configured")
		return moderation.NewModerator(nil, charReplacement, logger)
	}
	data, err := moderation.NewCensoredLoader(os.DirFS(config.CensoredWordsDir)).LoadAll(".")
	if err != nil {
		return moderation.Moderator{}, fmt.Errorf("censored words: %w", err)
	}
	logger.Info("Censored words loaded", "words", len(data.Words), "languages", data.Languages)
	return moderation.NewModerator(data.Words, charReplacement, logger)
}

// StoreMapper renders badger rows of the session layout for the inspector.
func StoreMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	path, ok := badgerstore.PathOf(key)
	if !ok {
		row.Type = "SEQUENCE"
		return row
	}
	d := repositories.Describe(path, val)
	row.Type = d.Area.String()
	row.Detail = d.Detail
	return row
}
