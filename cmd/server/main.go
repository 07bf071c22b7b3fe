package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgadmin/modules"
	"github.com/iota-uz/orgadmin/modules/org"
	"github.com/iota-uz/orgadmin/modules/org/infrastructure/persistence"
	"github.com/iota-uz/orgadmin/modules/org/services"
	"github.com/iota-uz/orgadmin/pkg/application"
	"github.com/iota-uz/orgadmin/pkg/configuration"
	"github.com/iota-uz/orgadmin/pkg/eventbus"
	"github.com/iota-uz/orgadmin/pkg/logging"
	"github.com/iota-uz/orgadmin/pkg/metrics"
	"github.com/iota-uz/orgadmin/pkg/middleware"
	"github.com/iota-uz/orgadmin/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		cleanup, err := logging.SetupTracing(context.Background(), conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.Endpoint, logger)
		if err != nil {
			log.Fatalf("failed to set up tracing: %v", err)
		}
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.Endpoint)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	var repo services.OrgRepository
	if conf.Org.Store == "postgres" {
		p, pgRepo, err := connectPostgres(ctx, conf)
		if err != nil {
			log.Fatalf("failed to set up postgres: %v", err)
		}
		defer p.Close()
		pool, repo = p, pgRepo
	} else {
		logger.Warn("ORG_STORE=memory: organizations are not persisted")
		repo = persistence.NewMemoryOrgRepository()
	}

	var rdb *redis.Client
	if conf.Org.Cache == "redis" {
		rdb = redis.NewClient(&redis.Options{Addr: conf.RedisURL})
		defer func() { _ = rdb.Close() }()
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})

	if err := registerMiddleware(app, conf, logger); err != nil {
		log.Fatalf("failed to set up middleware: %v", err)
	}

	orgOptions := &org.ModuleOptions{Repository: repo, Cache: treeCache(conf, rdb)}
	if err := modules.Load(app, modules.BuiltInModules(orgOptions)...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path, nil))
	}

	srv := server.NewHTTPServer(app, nil, nil)
	log.Printf("Listening on: %s\n", conf.Origin)
	if err := srv.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func connectPostgres(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, *persistence.PGOrgRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return nil, nil, err
	}
	repo := persistence.NewPGOrgRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, repo, nil
}

func treeCache(conf *configuration.Configuration, rdb *redis.Client) services.TreeCache {
	switch conf.Org.Cache {
	case "memory":
		return services.NewMemoryTreeCache(conf.Org.CacheTTL)
	case "redis":
		return services.NewRedisTreeCache(rdb, services.DefaultTreeCacheKey, conf.Org.CacheTTL)
	default:
		return services.NoopTreeCache{}
	}
}

func registerMiddleware(app application.Application, conf *configuration.Configuration, logger *logrus.Logger) error {
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: conf.RateLimit.GlobalRPS,
		TrustProxy:        conf.GoAppEnvironment == configuration.Production,
	}
	if !conf.RateLimit.Enabled {
		rateLimitCfg.RequestsPerSecond = 0
	}
	if conf.RateLimit.Storage == "redis" {
		opts, err := redis.ParseURL(conf.RateLimit.RedisURL)
		if err != nil {
			return err
		}
		rateLimitCfg.RedisClient = redis.NewClient(opts)
	}
	rateLimit, err := middleware.RateLimit(rateLimitCfg)
	if err != nil {
		return err
	}

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	loggerOpts.RealIPHeader = conf.RealIPHeader

	app.RegisterMiddleware(
		middleware.WithLogger(logger, loggerOpts),
		middleware.TracedMiddleware("http"),
		middleware.Cors(conf.AllowedOrigins, conf.CSRFHeader, conf.RequestIDHeader),
		rateLimit,
		middleware.ProvidePool(app.DB()),
		middleware.CSRF(middleware.CSRFOptions{
			AuthKey:        []byte(conf.CSRFAuthKey),
			CookieName:     conf.CSRFCookieKey,
			HeaderName:     conf.CSRFHeader,
			Secure:         conf.GoAppEnvironment == configuration.Production,
			APIPrefixes:    []string{"/admin/api/"},
			AllowedOrigins: conf.AllowedOrigins,
		}, logger),
	)
	return nil
}
