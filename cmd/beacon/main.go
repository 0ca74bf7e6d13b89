// Command beacon runs the analytics collector as a standalone HTTP service.
//
//	beacon          serve the collector (configured from BEACON_* variables)
//	beacon secret   print a new producer signing secret
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/api"
	"github.com/xraph/beacon/metric"
	"github.com/xraph/beacon/observability"
	"github.com/xraph/beacon/ratelimit"
	"github.com/xraph/beacon/signature"
	"github.com/xraph/beacon/store"
	"github.com/xraph/beacon/store/memory"
	mongostore "github.com/xraph/beacon/store/mongo"
	"github.com/xraph/beacon/store/postgres"
	redisstore "github.com/xraph/beacon/store/redis"
	"github.com/xraph/beacon/store/sqlite"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "secret" {
		secret, err := signature.GenerateSecret()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(secret)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := setupLogging(cfg.LogLevel, cfg.LogJSON)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("beacon exited", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var rdb goredis.UniversalClient
	if cfg.Store == backendRedis || cfg.Limiter == backendRedis {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		defer client.Close()
		rdb = client
	}

	st, err := openStore(ctx, cfg, rdb)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []beacon.Option{
		beacon.WithStore(st),
		beacon.WithLogger(logger),
		beacon.WithRateLimit(cfg.RateLimit),
		beacon.WithRateWindow(cfg.RateWindow),
		beacon.WithCookieName(cfg.CookieName),
		beacon.WithDefaults(cfg.Defaults),
		beacon.WithMetrics(observability.NewMetrics(prometheus.DefaultRegisterer)),
		beacon.WithTracer(observability.NewTracer()),
	}
	if cfg.Limiter == backendRedis {
		opts = append(opts, beacon.WithAdmitter(ratelimit.NewRedis(rdb, cfg.RateLimit, cfg.RateWindow)))
	}
	if len(cfg.AllowedTypes) > 0 {
		opts = append(opts, beacon.WithAllowedTypes(cfg.AllowedTypes...))
	}
	if cfg.MetricSetsFile != "" {
		sets, err := loadMetricSets(cfg.MetricSetsFile)
		if err != nil {
			return err
		}
		opts = append(opts, beacon.WithMetricSets(sets...))
	}

	b, err := beacon.New(opts...)
	if err != nil {
		return fmt.Errorf("create beacon: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.NewHandler(b, api.Config{
		AdminToken:      cfg.AdminToken,
		AllowedOrigins:  cfg.AllowedOrigins,
		ProducerSecrets: cfg.ProducerSecrets,
	}, logger))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting beacon",
			"addr", cfg.Addr,
			"store", cfg.Store,
			"limiter", cfg.Limiter,
			"admin", cfg.AdminToken != "",
			"producers", len(cfg.ProducerSecrets),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg Config, rdb goredis.UniversalClient) (store.Store, error) {
	var st store.Store
	switch cfg.Store {
	case backendRedis:
		st = redisstore.New(rdb)
	case backendSQLite, backendPostgres, backendMongo:
		db, err := openGrove(ctx, cfg.Store, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		switch cfg.Store {
		case backendSQLite:
			st = sqlite.New(db)
		case backendPostgres:
			st = postgres.New(db)
		default:
			st = mongostore.New(db)
		}
	default:
		st = memory.New()
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return st, nil
}

// openGrove connects the grove driver for backend and wraps it.
func openGrove(ctx context.Context, backend, dsn string) (*grove.DB, error) {
	var drv grove.GroveDriver
	switch backend {
	case backendSQLite:
		sdb := sqlitedriver.New()
		if err := sdb.Open(ctx, dsn); err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		drv = sdb
	case backendPostgres:
		pdb := pgdriver.New()
		if err := pdb.Open(ctx, dsn); err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		drv = pdb
	case backendMongo:
		mdb := mongodriver.New()
		if err := mdb.Open(ctx, dsn); err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		drv = mdb
	default:
		return nil, fmt.Errorf("no grove driver for %q", backend)
	}

	db, err := grove.Open(drv)
	if err != nil {
		_ = drv.Close()
		return nil, fmt.Errorf("wrap %s driver: %w", backend, err)
	}
	return db, nil
}

func loadMetricSets(path string) ([]metric.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metric sets: %w", err)
	}
	defer f.Close()

	sets, err := metric.Load(f)
	if err != nil {
		return nil, fmt.Errorf("load metric sets %s: %w", path, err)
	}
	return sets, nil
}

func setupLogging(level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if !json {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
