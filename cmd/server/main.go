// Package main runs the registry service: account store, revision history,
// transaction processor and the HTTP API, plus optional cluster watchers that
// mirror oracle changes into the history store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"oracle-protocol/internal/api"
	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/feed"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/registry"
	"oracle-protocol/internal/runtime"
	"oracle-protocol/internal/solana"
	"oracle-protocol/internal/storage"
	"oracle-protocol/internal/storage/cache"
	chstore "oracle-protocol/internal/storage/clickhouse"
	"oracle-protocol/internal/storage/memory"
	"oracle-protocol/internal/storage/migrations"
	pebblestore "oracle-protocol/internal/storage/pebble"
	pgstore "oracle-protocol/internal/storage/postgres"
	redisstore "oracle-protocol/internal/storage/redis"
)

// Account store backends selectable with --store.
const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storePebble   = "pebble"
	storeRedis    = "redis"
)

// config holds the parsed command line.
type config struct {
	httpAddr      string
	store         string
	postgresDSN   string
	pebbleDir     string
	redisURL      string
	clickhouseDSN string
	programs      pda.Programs
	cacheSize     int
	wsEndpoint    string
	watch         []domain.Pubkey
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Server error: %v", err)
	}
	logger.Println("Shutdown complete")
}

// parseConfig reads flags, each defaulting from its environment variable.
func parseConfig(fs *flag.FlagSet, args []string) (*config, error) {
	httpAddr := fs.String("http-addr", envOr("REGISTRY_HTTP_ADDR", ":8080"), "HTTP listen address")
	store := fs.String("store", envOr("REGISTRY_STORE", storeMemory), "Account store: memory, postgres, pebble or redis")
	postgresDSN := fs.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	pebbleDir := fs.String("pebble-dir", envOr("PEBBLE_DIR", "data/accounts"), "Pebble data directory")
	redisURL := fs.String("redis-url", os.Getenv("REDIS_URL"), "Redis URL (redis://host:port/db)")
	clickhouseDSN := fs.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse DSN for revision history (in-memory when empty)")
	providerProgram := fs.String("provider-program-id", envOr("PROVIDER_PROGRAM_ID", pda.DefaultProviderProgramID.String()), "Provider program ID")
	oracleProgram := fs.String("oracle-program-id", envOr("ORACLE_PROGRAM_ID", pda.DefaultOracleProgramID.String()), "Oracle program ID")
	cacheSize := fs.Int("cache-size", envInt("REGISTRY_CACHE_SIZE", 1024), "Account cache entries (0 disables)")
	wsEndpoint := fs.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint for --watch")
	watch := fs.String("watch", os.Getenv("WATCH_ORACLES"), "Comma-separated cluster oracle addresses to mirror into history")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{
		httpAddr:      *httpAddr,
		store:         *store,
		postgresDSN:   *postgresDSN,
		pebbleDir:     *pebbleDir,
		redisURL:      *redisURL,
		clickhouseDSN: *clickhouseDSN,
		cacheSize:     *cacheSize,
		wsEndpoint:    *wsEndpoint,
	}

	var err error
	if cfg.programs.Provider, err = domain.ParsePubkey(*providerProgram); err != nil {
		return nil, fmt.Errorf("--provider-program-id: %w", err)
	}
	if cfg.programs.Oracle, err = domain.ParsePubkey(*oracleProgram); err != nil {
		return nil, fmt.Errorf("--oracle-program-id: %w", err)
	}

	for _, s := range strings.Split(*watch, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		address, err := domain.ParsePubkey(s)
		if err != nil {
			return nil, fmt.Errorf("--watch %q: %w", s, err)
		}
		cfg.watch = append(cfg.watch, address)
	}

	switch cfg.store {
	case storeMemory:
	case storePostgres:
		if cfg.postgresDSN == "" {
			return nil, errors.New("--postgres-dsn is required for --store=postgres")
		}
	case storePebble:
		if cfg.pebbleDir == "" {
			return nil, errors.New("--pebble-dir is required for --store=pebble")
		}
	case storeRedis:
		if cfg.redisURL == "" {
			return nil, errors.New("--redis-url is required for --store=redis")
		}
	default:
		return nil, fmt.Errorf("unknown --store %q", cfg.store)
	}
	if len(cfg.watch) > 0 && cfg.wsEndpoint == "" {
		return nil, errors.New("--ws-endpoint is required with --watch")
	}
	if cfg.cacheSize < 0 {
		return nil, fmt.Errorf("--cache-size must be >= 0, got %d", cfg.cacheSize)
	}
	return cfg, nil
}

// backends holds the opened stores and their health checks.
type backends struct {
	accounts storage.AccountStore
	history  storage.HistoryStore
	checks   map[string]api.HealthCheck
	closers  []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the configured account store and history store and
// applies schema migrations.
func openBackends(ctx context.Context, cfg *config, metrics *observability.Metrics, logger *log.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]api.HealthCheck)}

	switch cfg.store {
	case storeMemory:
		b.accounts = memory.NewAccountStore()

	case storePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			b.close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		b.accounts = pgstore.NewAccountStore(pool)
		b.checks["postgres"] = pool.Health

	case storePebble:
		store, err := pebblestore.Open(cfg.pebbleDir)
		if err != nil {
			return nil, fmt.Errorf("open pebble: %w", err)
		}
		b.closers = append(b.closers, func() {
			if err := store.Close(); err != nil {
				logger.Printf("WARN: close pebble: %v", err)
			}
		})
		b.accounts = store

	case storeRedis:
		client, err := redisstore.New(ctx, cfg.redisURL)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		b.closers = append(b.closers, func() { client.Close() })
		b.accounts = redisstore.NewAccountStore(client.Client)
		b.checks["redis"] = client.Health
	}
	logger.Printf("Account store: %s", cfg.store)

	if cfg.cacheSize > 0 {
		cached, err := cache.New(b.accounts, cfg.cacheSize, metrics)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("account cache: %w", err)
		}
		b.accounts = cached
		logger.Printf("Account cache: %d entries", cfg.cacheSize)
	}

	if cfg.clickhouseDSN == "" {
		b.history = memory.NewHistoryStore()
		logger.Println("Revision history: in-memory")
		return b, nil
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
	if err != nil {
		b.close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	b.closers = append(b.closers, func() { conn.Close() })
	b.history = chstore.NewHistoryStore(conn)
	b.checks["clickhouse"] = conn.Ping
	logger.Println("Revision history: clickhouse")
	return b, nil
}

// run serves the API until ctx is cancelled.
func run(ctx context.Context, cfg *config, logger *log.Logger) error {
	metrics := observability.DefaultMetrics

	b, err := openBackends(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	defer b.close()

	reg := registry.New(registry.Options{
		Accounts: b.accounts,
		History:  b.history,
		Programs: cfg.programs,
		Logger:   log.New(os.Stdout, "[registry] ", log.LstdFlags),
		Metrics:  metrics,
	})
	processor := runtime.NewProcessor(runtime.ProcessorOptions{
		Registry: reg,
		Logger:   log.New(os.Stdout, "[runtime] ", log.LstdFlags),
		Metrics:  metrics,
	})
	srv := api.New(api.Options{
		Registry:  reg,
		Processor: processor,
		Checks:    b.checks,
		Logger:    log.New(os.Stdout, "[api] ", log.LstdFlags),
		Metrics:   metrics,
	})

	httpServer := api.NewHTTPServer(cfg.httpAddr, srv.Handler())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("Starting HTTP server on %s", cfg.httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Println("Shutting down HTTP server...")
		return httpServer.Shutdown(shutdownCtx)
	})

	if len(cfg.watch) > 0 {
		g.Go(func() error {
			return runWatchers(ctx, cfg, b.history, metrics)
		})
	}

	return g.Wait()
}

// runWatchers mirrors each watched cluster oracle into the history store.
func runWatchers(ctx context.Context, cfg *config, history storage.HistoryStore, metrics *observability.Metrics) error {
	logger := log.New(os.Stdout, "[feed] ", log.LstdFlags)

	wsCfg := solana.DefaultWSConfig()
	wsCfg.Logger = logger
	wsCfg.Metrics = metrics
	ws, err := solana.NewWSClient(ctx, cfg.wsEndpoint, &wsCfg)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	watcher := feed.NewWatcher(feed.WatcherOptions{
		WS:       ws,
		History:  history,
		Programs: cfg.programs,
		Logger:   logger,
		Metrics:  metrics,
	})

	g, ctx := errgroup.WithContext(ctx)
	for _, address := range cfg.watch {
		updates, err := watcher.Watch(ctx, address)
		if err != nil {
			return fmt.Errorf("watch %s: %w", address, err)
		}
		address := address
		g.Go(func() error {
			for u := range updates {
				if u.Err == nil {
					logger.Printf("oracle %s slot %d: %d attributes", address, u.Slot, len(u.Oracle.Attributes))
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// loadEnvFile loads KEY=VALUE lines from ./.env without overriding the environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
