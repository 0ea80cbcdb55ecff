/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Quest Engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Open the store (SQLite by default, PostgreSQL when DATABASE_URL set)
  3. Wire ledger, reward store, economy, task service
  4. Attach notifier, event hub, flush scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional)
  -port    HTTP server port (overrides config)
  -db      SQLite database path (overrides config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Flush dirty state, stop the scheduler
  4. Close database connection
  5. Exit

ENVIRONMENT:
  PORT, DATABASE_URL, SQLITE_PATH, TELEGRAM_BOT_TOKEN, ALLOWED_ORIGINS,
  FLUSH_INTERVAL. A .env file is loaded if present.

SEE ALSO:
  - config/config.go: Configuration layering
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
*/
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/quest-engine/api"
	"github.com/warp/quest-engine/config"
	"github.com/warp/quest-engine/notify"
	"github.com/warp/quest-engine/progression"
	"github.com/warp/quest-engine/rewards"
	"github.com/warp/quest-engine/store/postgres"
	"github.com/warp/quest-engine/store/sqlite"
	"github.com/warp/quest-engine/tasks"
)

// fullStore is what both database backends provide.
type fullStore interface {
	progression.StatsStore
	progression.UserStore
	rewards.ListStore
	tasks.Repository
	io.Closer
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.SQLitePath = *dbPath
	}

	// Store
	var store fullStore
	switch cfg.Store.Driver {
	case "postgres":
		store, err = postgres.New(cfg.Store.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		log.Println("Using PostgreSQL store")
	default:
		store, err = sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite database: %v", err)
		}
		log.Printf("Using SQLite store at %s", cfg.Store.SQLitePath)
	}
	defer store.Close()

	// Domain services
	ledger := progression.NewLedger(store)
	rewardStore := rewards.NewStore(store)
	economy := rewards.NewEconomy(ledger, rewardStore)
	taskSvc := tasks.NewService(store, ledger)

	// Notifications
	var notifier progression.Notifier = notify.Log{}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.Token)
		if err != nil {
			log.Printf("Warning: telegram disabled: %v", err)
		} else {
			notifier = tg
		}
	}
	ledger.SetNotifier(notifier)
	economy.SetNotifier(notifier)

	// Event feed
	events := api.NewEventHub()
	events.BindLedger(ledger)
	events.BindEconomy(economy)

	// Background flush of dirty state
	scheduler := api.NewSyncScheduler(ledger, rewardStore, cfg.Sync.FlushInterval)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(store, ledger, rewardStore, economy, taskSvc, events)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server starting on http://%s", cfg.Addr())
		log.Printf("📊 API available at http://%s/api", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// One last chance for writes that failed while serving.
	ledger.FlushDirty(ctx)
	rewardStore.FlushDirty(ctx)

	log.Println("Server stopped")
}
