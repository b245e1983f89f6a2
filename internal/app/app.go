package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/gozy-app/gozy/internal/domain/checkout"
	"github.com/gozy-app/gozy/internal/domain/offer"
	"github.com/gozy-app/gozy/internal/domain/profile"
	"github.com/gozy-app/gozy/internal/domain/settlement"
	"github.com/gozy-app/gozy/internal/handler"
	"github.com/gozy-app/gozy/internal/storage"
	"github.com/gozy-app/gozy/internal/storage/memory"
	"github.com/gozy-app/gozy/internal/storage/postgres"
	redisstore "github.com/gozy-app/gozy/internal/storage/redis"
	"github.com/gozy-app/gozy/pkg/health"
	"github.com/gozy-app/gozy/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("catalog", cfg.Catalog.Source),
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Bool("redis", cfg.Redis.Addr != ""),
	)

	var (
		store storage.Store = memory.New()
		pool  *pgxpool.Pool
	)
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return errors.Wrap(err, "create db pool")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		store = postgres.NewKVStore(pool)
	}
	if cfg.Redis.Addr != "" {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return errors.Wrap(err, "connect to redis")
		}
		defer func() { _ = client.Close() }()
		store = redisstore.New(client)
	}

	catalog, err := loadCatalog(ctx, cfg.Catalog, pool)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	lg.Info("Offer catalog loaded", zap.Int("offers", catalog.Len()))

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("store", 5*time.Second, health.PingCheck(store))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h, err := newHandler(cfg, store, catalog, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MuxRoutes(mux)

	limiter := httpmiddleware.NewLimiter(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})
	go limiter.Run(ctx)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			limiter.Middleware(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("gozy-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server",
			zap.Duration("timeout", cfg.Graceful.ShutdownTimeout),
			zap.Int("open_sessions", h.Sessions()),
		)
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// loadCatalog returns the built-in catalog or the active offers stored in
// PostgreSQL.
func loadCatalog(ctx context.Context, cfg CatalogConfig, pool *pgxpool.Pool) (*offer.Catalog, error) {
	if cfg.Source != CatalogPostgres {
		return offer.DefaultCatalog(), nil
	}
	offers, err := postgres.NewOfferRepository(pool).List(ctx)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		return nil, errors.New("offers table is empty: run offer-import first")
	}
	return offer.NewCatalog(offers...)
}

// newHandler builds the domain services over store and the HTTP handler on
// top of them.
func newHandler(cfg *Config, store storage.Store, catalog *offer.Catalog, mp metric.MeterProvider) (*handler.Handler, error) {
	profiles := profile.NewRepository(store)
	return handler.NewHandler(
		handler.Config{
			Selector:   cfg.Offers.SelectorConfig(),
			SessionTTL: cfg.Offers.SessionTTL,
		},
		catalog,
		checkout.NewService(catalog, profiles, cfg.Offers.CheckoutConfig()),
		settlement.NewService(profiles, catalog, cfg.Settlement.Ledger()),
		profiles,
		mp,
	)
}
