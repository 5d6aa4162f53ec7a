package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/request-mailer/internal/api"
	"github.com/sungwon/request-mailer/internal/auth"
	"github.com/sungwon/request-mailer/internal/bootstrap"
	"github.com/sungwon/request-mailer/internal/config"
	"github.com/sungwon/request-mailer/internal/credential"
	"github.com/sungwon/request-mailer/internal/deliverylog"
	"github.com/sungwon/request-mailer/internal/dispatch"
	"github.com/sungwon/request-mailer/internal/events"
	"github.com/sungwon/request-mailer/internal/logger"
	"github.com/sungwon/request-mailer/internal/metrics"
	"github.com/sungwon/request-mailer/internal/msgstore"
	"github.com/sungwon/request-mailer/internal/quota"
	"github.com/sungwon/request-mailer/internal/registry"
	"github.com/sungwon/request-mailer/internal/render"
	"github.com/sungwon/request-mailer/internal/storage"
	"github.com/sungwon/request-mailer/internal/transport"
)

// backends are the stores selected by database configuration.
type backends struct {
	quota       quota.Store
	registry    registry.Registry
	logs        deliverylog.Querier
	credentials credential.Store
	// memRegistry is set in memory mode for dev seeding.
	memRegistry *registry.MemoryRegistry
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	configDir := os.Getenv("REQUEST_MAILER_CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}

	// Load configuration
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxFiles:   cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	log.Info().Msg("starting request mailer")

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// validated by config.Load
	loc, _ := cfg.Dispatch.Location()
	readiness := map[string]api.Pinger{}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey:        cfg.Auth.SigningKey,
		AccessTokenExpiry: cfg.Auth.AccessTokenExpiry,
		Issuer:            cfg.Auth.Issuer,
		Audience:          cfg.Auth.Audience,
	})

	var be backends
	if cfg.Database.URL != "" {
		db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		log.Info().Msg("database connection established")

		sealer, err := credential.NewSealer(cfg.Credentials.SealingKey)
		if err != nil {
			return fmt.Errorf("credential sealer: %w", err)
		}

		queries := storage.New(db.Pool)
		be = backends{
			quota:       quota.NewPGStore(queries),
			registry:    registry.NewPGRegistry(queries),
			logs:        queries,
			credentials: credential.NewPGStore(queries, sealer),
		}
		readiness["database"] = db
		go metrics.TrackPool(ctx, 15*time.Second, db.PoolStats)
	} else {
		log.Warn().Msg("database.url is empty; running with in-memory stores")
		mem := registry.NewMemoryRegistry()
		be = backends{
			quota:       quota.NewMemoryStore(),
			registry:    mem,
			logs:        deliverylog.NewMemoryQuerier(),
			credentials: credential.NewMemoryStore(),
			memRegistry: mem,
		}
	}

	blobs, err := msgstore.New(ctx, msgstore.Config{
		Type:       cfg.Snapshots.Type,
		Path:       cfg.Snapshots.Path,
		S3Bucket:   cfg.Snapshots.S3Bucket,
		S3Prefix:   cfg.Snapshots.S3Prefix,
		S3Endpoint: cfg.Snapshots.S3Endpoint,
		S3Region:   cfg.Snapshots.S3Region,
	}, log)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	broker := events.NewBroker(cfg.Stream.Buffer, log)
	var publisher events.Publisher = broker
	ledgerOpts := []quota.Option{
		quota.WithLocation(loc),
		quota.WithDefaultQuota(cfg.Dispatch.DefaultDailyQuota),
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}

		relay := events.NewRedisRelay(rdb, broker, cfg.Redis.EventChannel, log)
		if err := relay.Start(ctx); err != nil {
			return fmt.Errorf("start event relay: %w", err)
		}
		publisher = relay
		ledgerOpts = append(ledgerOpts, quota.WithLocker(quota.NewRedisLocker(rdb, cfg.Redis.LockTTL, cfg.Redis.LockRetry, log)))
		readiness["redis"] = redisPinger{client: rdb}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("redis lock and event relay enabled")
	}

	ledger := quota.NewLedger(be.quota, log, ledgerOpts...)
	resolver := credential.NewResolver(
		be.credentials,
		transport.Config{
			FromAddress:        cfg.Dispatch.FromFallback,
			HeloName:           cfg.Transport.HeloName,
			Timeout:            cfg.Transport.Timeout,
			Endpoint:           cfg.Transport.SendGridEndpoint,
			InsecureSkipVerify: cfg.Transport.InsecureSkipVerify,
		},
		transport.NewHTTPClient(cfg.Transport.Timeout),
		nil,
		cfg.Credentials.CacheTTL,
		log,
	)
	logs := deliverylog.NewStore(be.logs, blobs, log)

	orchestrator := dispatch.NewOrchestrator(
		ledger,
		resolver,
		be.registry,
		logs,
		publisher,
		render.New(render.WithLocation(loc)),
		dispatch.Config{MaxAttachmentBytes: cfg.Dispatch.MaxAttachmentBytes},
		log,
	)

	if be.memRegistry != nil {
		users, err := bootstrap.SeedDev(ctx, be.memRegistry, be.credentials, jwtService, log)
		if err != nil {
			return fmt.Errorf("seed development data: %w", err)
		}
		for _, u := range users {
			log.Info().Str("email", u.Email).Str("role", u.Role).Str("token", u.Token).Msg("development access token")
		}
	}

	router := api.NewRouter(api.Deps{
		Dispatcher: orchestrator,
		Logs:       logs,
		Quota:      ledger,
		Stream:     broker,
		JWT:        jwtService,
		Readiness:  readiness,
		Heartbeat:  cfg.Stream.Heartbeat,
		Logger:     log,
	})

	// Cancelling baseCtx ends open event streams so Shutdown can drain.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return srv.Close()
	}
	return nil
}
