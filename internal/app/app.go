package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/config"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/event"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/gateway"
	handler "github.com/muhsiltomsher-cloud/asl-storefront/internal/handler/http"
	mcphandler "github.com/muhsiltomsher-cloud/asl-storefront/internal/handler/mcp"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/repository/postgres"
	redisrepo "github.com/muhsiltomsher-cloud/asl-storefront/internal/repository/redis"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/service"
	"github.com/muhsiltomsher-cloud/asl-storefront/internal/woocommerce"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/database"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/health"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/httpclient"
	pkgkafka "github.com/muhsiltomsher-cloud/asl-storefront/pkg/kafka"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/middleware"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/tracing"
)

// Version is stamped at build time.
var Version = "dev"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	rdb            *redis.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumer       *pkgkafka.Consumer
	gifts          *service.FreeGiftService
	checkout       *service.CheckoutService
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// routerCtx bounds background work owned by the router.
	routerCtx    context.Context
	routerCancel context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)
	database.RegisterPoolMetrics(pool, cfg.ServiceName)

	if err := database.RunMigrations(ctx, pool, postgres.Migrations(), logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("host", cfg.RedisHost),
		slog.Int("db", cfg.RedisDB),
	)

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	events := event.NewProducer(producer, logger)

	// Store client with retries and a circuit breaker.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.UpstreamTimeout
	httpCfg.MaxRetries = cfg.UpstreamRetries
	cbCfg := httpclient.DefaultCircuitBreakerConfig("woocommerce")
	cbCfg.Timeout = cfg.BreakerTimeout
	cbCfg.FailureRatio = cfg.BreakerFailureRatio
	cbCfg.MinRequests = cfg.BreakerMinRequests
	woo := woocommerce.New(woocommerce.Config{
		BaseURL:        cfg.WooBaseURL,
		ConsumerKey:    cfg.WooConsumerKey,
		ConsumerSecret: cfg.WooConsumerSecret,
		CoCartPath:     cfg.CoCartPath,
		RulesPath:      cfg.FreeGiftRulesPath,
		MaxPages:       cfg.CatalogMaxPages,
	}, woocommerce.NewHTTPClient(httpCfg, cbCfg, cfg.WooChromeTLS, logger), logger)

	gateways := newGatewayRegistry(cfg, logger)

	// Build the dependency graph.
	carts := service.NewCartService(
		woo, woo,
		redisrepo.NewCartSnapshotRepository(rdb, cfg.CartSnapshotTTL),
		redisrepo.NewCouponCache(rdb, cfg.RulesCacheTTL),
		events, logger,
	)
	gifts := service.NewFreeGiftService(
		woo, woo,
		redisrepo.NewRulesCache(rdb, cfg.RulesCacheTTL),
		redisrepo.NewGiftStateRepository(rdb, cfg.GiftStateTTL),
		carts, events,
		service.GiftConfig{Debounce: cfg.GiftDebounce, Timeout: cfg.GiftReconcileTimeout},
		logger,
	)
	carts.UseGiftScheduler(gifts)
	bundles := service.NewBundleService(postgres.NewBundleRepository(pool), woo, gifts, carts, logger)
	checkout := service.NewCheckoutService(
		carts, woo, bundles, gateways,
		postgres.NewPaymentAttemptRepository(pool),
		events, cfg,
		service.CheckoutConfig{StorefrontURL: cfg.StorefrontURL},
		logger,
	)

	// Clear carts of orders paid through hosted gateways.
	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaConsumerGroup,
		Topic:   event.TopicPaymentVerified,
	}, event.PaymentVerifiedHandler(carts, rdb, 24*time.Hour, logger), logger).WithDLQ(dlq)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("woocommerce", woo.Ping)

	// HTTP router.
	routerCtx, routerCancel := context.WithCancel(context.Background())
	router := handler.NewRouter(routerCtx, handler.Services{
		Cart:     carts,
		Checkout: checkout,
		Gifts:    gifts,
		Bundles:  bundles,
		MCP:      mcphandler.New(carts, gifts, bundles, Version, logger).NewHTTPHandler(),
	}, healthHandler, handler.RouterConfig{
		ServiceName:    cfg.ServiceName,
		CORSOrigins:    cfg.CORSOrigins,
		PprofCIDRs:     cfg.PprofCIDRs,
		Tokens:         middleware.HMACValidator([]byte(cfg.JWTSecret)),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      75 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		rdb:            rdb,
		producer:       producer,
		dlq:            dlq,
		consumer:       consumer,
		gifts:          gifts,
		checkout:       checkout,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
		routerCtx:      routerCtx,
		routerCancel:   routerCancel,
	}, nil
}

// newGatewayRegistry registers the hosted gateways that have credentials.
// PAYMENT_MOCK swaps all of them for mocks.
func newGatewayRegistry(cfg *config.Config, logger *slog.Logger) *gateway.Registry {
	if cfg.MockGateway {
		logger.Warn("payment gateways are mocked")
		return gateway.NewRegistry(
			gateway.NewMock(domain.GatewayMyFatoorah),
			gateway.NewMock(domain.GatewayTabby),
			gateway.NewMock(domain.GatewayTamara),
		)
	}

	client := func(name string) httpclient.Doer {
		httpCfg := httpclient.DefaultConfig()
		httpCfg.MaxRetries = 1
		return httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), httpclient.DefaultCircuitBreakerConfig(name), logger)
	}

	var gws []gateway.Gateway
	if cfg.MyFatoorahAPIKey != "" {
		gws = append(gws, gateway.NewMyFatoorah(client("myfatoorah"), cfg.MyFatoorahBaseURL, cfg.MyFatoorahAPIKey, cfg.MyFatoorahTestMode, logger))
	}
	if cfg.TabbySecretKey != "" {
		gws = append(gws, gateway.NewTabby(client("tabby"), cfg.TabbyBaseURL, cfg.TabbySecretKey, cfg.TabbyMerchantCode, logger))
	}
	if cfg.TamaraToken != "" {
		gws = append(gws, gateway.NewTamara(client("tamara"), cfg.TamaraBaseURL, cfg.TamaraToken))
	}
	return gateway.NewRegistry(gws...)
}

// Run starts the HTTP server and the payment consumer and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	var consumerDone sync.WaitGroup
	consumerDone.Add(1)
	go func() {
		defer consumerDone.Done()
		if err := a.consumer.Start(consumerCtx); err != nil {
			a.logger.Error("payment consumer stopped", slog.String("error", err.Error()))
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopConsumer()
	consumerDone.Wait()
	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in order: HTTP server, pending
// gift passes and cart clears, tracer, kafka, then the stores.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.routerCancel()

	if err := a.gifts.Stop(ctx); err != nil {
		a.logger.Error("free gift shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.checkout.Wait()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
