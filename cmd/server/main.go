/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the rent collection engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), parse flags
  2. Load the escalation policy (POLICY_FILE or defaults)
  3. Initialize SQLite store
  4. Wire notifier (SMS dispatcher) and run lock (Redis or in-process)
  5. Create API handler, router and the collection scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

ENVIRONMENT:
  See config/config.go. REDIS_ADDRESS switches the run lock to Redis so
  several instances can share one database safely.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Daily collection scheduler
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/rent-engine/api"
	"github.com/warp/rent-engine/collection"
	"github.com/warp/rent-engine/config"
	"github.com/warp/rent-engine/factory"
	"github.com/warp/rent-engine/lock"
	"github.com/warp/rent-engine/notify"
	"github.com/warp/rent-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := config.NewLogger(cfg.LogLevel, cfg.Env)

	policy, err := factory.LoadPolicyFile(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.PolicyFile).Msg("Invalid escalation policy")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to initialize database")
	}
	defer store.Close()

	dispatcher := notify.NewDispatcher(notify.LogSender{Log: log}, store, notify.Config{
		OwnerPhone:    cfg.OwnerPhone,
		ManagerPhone:  cfg.ManagerPhone,
		DefaultRegion: cfg.DefaultRegion,
	}, log)

	var locker collection.Locker = lock.NewLocal()
	if cfg.RedisAddress != "" {
		rl := lock.NewRedis(lock.RedisConfig{Address: cfg.RedisAddress, TTL: cfg.LockTTL}, log)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rl.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("address", cfg.RedisAddress).Msg("Redis unreachable")
		}
		defer rl.Close()
		locker = rl
		log.Info().Str("address", cfg.RedisAddress).Msg("Using Redis run lock")
	}

	handler := api.NewHandler(store, policy, api.Options{
		Notifier: dispatcher,
		Locker:   locker,
		Region:   cfg.DefaultRegion,
	}, log)
	router := api.NewRouter(handler)

	scheduler := api.NewCollectionScheduler(handler, log)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.CheckInterval = cfg.SchedulerInterval
	scheduler.RunHour = cfg.RunHour
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Int("port", *port).
			Str("env", cfg.Env).
			Str("jurisdiction", policy.Jurisdiction).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
