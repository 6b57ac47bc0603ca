package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/contact-import/internal/api"
	"github.com/ignite/contact-import/internal/config"
	"github.com/ignite/contact-import/internal/domain"
	"github.com/ignite/contact-import/internal/listsource"
	"github.com/ignite/contact-import/internal/pkg/distlock"
	"github.com/ignite/contact-import/internal/pkg/logger"
	"github.com/ignite/contact-import/internal/repository/memory"
	"github.com/ignite/contact-import/internal/repository/postgres"
	"github.com/ignite/contact-import/internal/repository/redisstore"
	"github.com/ignite/contact-import/internal/service/contactimport"
	"github.com/ignite/contact-import/internal/service/listimport"
	"github.com/ignite/contact-import/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// extractHost returns host:port from a connection URL without credentials.
func extractHost(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("Contact import server starting")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(*cfg.Logging.RedactPII)

	host := cfg.Server.GetHost()
	if err := checkPortAvailable(host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Contact store: PostgreSQL when configured, otherwise in memory.
	var (
		contacts contactimport.ContactStore
		db       *sql.DB
		dbPinger api.Pinger
	)
	if cfg.Database.URL != "" {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		repo := postgres.NewContactRepo(db)
		contacts = repo
		dbPinger = repo
		logger.Info("[Server] contact store: postgres", "host", extractHost(cfg.Database.URL))
	} else {
		contacts = memory.NewContactStore()
		logger.Warn("[Server] DATABASE_URL not set, contacts are kept in memory")
	}

	// Batches and job progress: Redis when configured, otherwise in memory.
	var (
		batches     contactimport.BatchStore
		progress    listimport.ProgressStore
		rdb         *redis.Client
		redisPinger api.Pinger
	)
	if cfg.Redis.URL != "" {
		rdb, err = openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		batchRepo := redisstore.NewBatchRepo(rdb, cfg.Import.BatchTTL())
		batches = batchRepo
		progress = redisstore.NewProgressRepo(rdb, cfg.Import.ProgressTTL())
		redisPinger = batchRepo
		logger.Info("[Server] batch store: redis", "addr", rdb.Options().Addr)
	} else {
		batches = memory.NewBatchStore()
		progress = memory.NewProgressStore()
		logger.Warn("[Server] REDIS_URL not set, batches and job progress are kept in memory")
	}

	raw, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	logger.Info("[Server] raw upload archive ready", "type", cfg.Storage.Type)

	locks := distlock.NewFactory(rdb, db)
	defaults := importDefaults(cfg.Import)

	imports := contactimport.NewService(contacts, batches, raw, locks, contactimport.Options{
		Defaults:       defaults,
		SampleRows:     cfg.Import.SampleRows,
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
		CommitLockTTL:  cfg.Import.CommitLockTTL(),
	})

	fetcher := listsource.NewClient(listsource.Config{
		BaseURL:      cfg.ListSource.BaseURL,
		TokenURL:     cfg.ListSource.TokenURL,
		ClientID:     cfg.ListSource.ClientID,
		ClientSecret: cfg.ListSource.ClientSecret,
		Scopes:       cfg.ListSource.Scopes,
		APIKey:       cfg.ListSource.APIKey,
		PageSize:     cfg.ListSource.PageSize,
		Timeout:      cfg.ListSource.Timeout(),
		MaxRetries:   cfg.ListSource.MaxRetries,
	})
	lists := listimport.NewService(fetcher, contactimport.NewCommitter(contacts), progress, locks, listimport.Options{
		BaseURL:      cfg.ListSource.BaseURL,
		FetchTimeout: cfg.Import.FetchTimeout(),
		Retention:    cfg.Import.JobRetention(),
		Defaults:     defaults,
	})

	handlers := api.NewHandlers(imports, lists, cfg.Import.MaxUploadBytes)
	health := api.NewHealthChecker(dbPinger, redisPinger, raw)
	server := api.NewServer(cfg.Server, handlers, health)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
		logger.Info("[Server] listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[Server] shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("[Server] http shutdown failed", "error", err)
		}
		// In-flight list imports finish or are abandoned at the deadline.
		if err := lists.Shutdown(shutdownCtx); err != nil {
			logger.Warn("[Server] list imports still running at shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	var client *redis.Client
	if opts, err := redis.ParseURL(url); err == nil {
		client = redis.NewClient(opts)
	} else {
		// Plain host:port
		client = redis.NewClient(&redis.Options{Addr: url})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func importDefaults(c config.ImportConfig) domain.ImportConfig {
	d := domain.DefaultImportConfig()
	d.DefaultCountry = strings.ToUpper(c.DefaultCountry)
	d.DefaultSeparator = c.DefaultSeparator
	if c.DefaultPolicy != "" {
		d.Policy = domain.UpsertPolicy(strings.ToUpper(c.DefaultPolicy))
	}
	if !d.Policy.Valid() {
		log.Fatalf("invalid import.default_policy %q", c.DefaultPolicy)
	}
	return d
}
