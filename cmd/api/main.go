package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/salon-pos/internal/audit"
	"github.com/noah-isme/salon-pos/internal/auth"
	"github.com/noah-isme/salon-pos/internal/cache"
	"github.com/noah-isme/salon-pos/internal/cart"
	"github.com/noah-isme/salon-pos/internal/catalog"
	"github.com/noah-isme/salon-pos/internal/checkout"
	"github.com/noah-isme/salon-pos/internal/common"
	"github.com/noah-isme/salon-pos/internal/config"
	"github.com/noah-isme/salon-pos/internal/directory"
	"github.com/noah-isme/salon-pos/internal/health"
	"github.com/noah-isme/salon-pos/internal/ledger"
	"github.com/noah-isme/salon-pos/internal/lock"
	"github.com/noah-isme/salon-pos/internal/notify"
	"github.com/noah-isme/salon-pos/internal/obs"
	"github.com/noah-isme/salon-pos/internal/ratelimit"
	"github.com/noah-isme/salon-pos/internal/reporting"
	"github.com/noah-isme/salon-pos/internal/resilience"
	"github.com/noah-isme/salon-pos/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "salon-pos-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve report timezone")
	}
	menu, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("load catalog")
	}
	people, err := directory.Load(cfg.DirectoryPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DirectoryPath).Msg("load directory")
	}

	probes := map[string]health.Probe{}

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	repo, closeLedger := openLedger(ctx, cfg, logger, probes)
	defer closeLedger()
	ledgerBreaker := resilience.NewBreaker(cfg.LedgerBreakerMinRequests, cfg.LedgerBreakerFailureRatio, cfg.LedgerBreakerOpenFor).
		WithTarget("ledger").
		WithLogger(&logger)
	ledgerRepo := ledger.NewObserved(ledger.Guarded{Repo: repo, Breaker: ledgerBreaker}, cfg.LedgerDriver, &logger)

	var sink notify.Sink = notify.LogSink{Logger: &logger}
	if cfg.NotifyQueueEnabled {
		taskClient := asynq.NewClientFromRedisClient(redisClient)
		sink = notify.Fanout{sink, notify.QueueSink{Client: taskClient, Logger: &logger}}
	}

	var (
		cartStore cart.Store
		locker    lock.Locker
	)
	if redisClient != nil {
		cartStore = cart.NewRedisStore(redisClient, cfg.CartTTL)
		locker = lock.RedisLocker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}
	} else {
		cartStore = cart.NewMemoryStore(cfg.CartTTL)
		locker = lock.NewLocalLocker()
	}

	cartSvc := &cart.Service{
		Store:    cartStore,
		Locker:   locker,
		LockTTL:  cfg.LockTTL,
		Logger:   &logger,
		Notify:   sink,
		NewID:    uuid.NewString,
		Currency: cfg.CurrencySymbol,
		LookupProduct: func(ctx context.Context, id string) (cart.Product, error) {
			svc, err := menu.Service(ctx, id)
			if err != nil {
				return cart.Product{}, err
			}
			return cart.Product{ID: svc.ID, Name: svc.Name, Price: svc.Price, Category: svc.Category}, nil
		},
		LookupCustomer: func(ctx context.Context, id string) (cart.Party, error) {
			c, err := people.Customer(ctx, id)
			return cart.Party{ID: c.ID, Name: c.Name}, err
		},
		LookupStaff: func(ctx context.Context, id string) (cart.Party, error) {
			m, err := people.StaffMember(ctx, id)
			return cart.Party{ID: m.ID, Name: m.Name}, err
		},
	}
	checkoutSvc := &checkout.Service{Carts: cartSvc, Ledger: ledgerRepo, Notify: sink, Logger: &logger}

	aggregator := &reporting.Aggregator{
		Ledger:   ledgerRepo,
		Cache:    cache.NewJSON(redisClient, "report", cfg.ReportCacheTTL),
		Location: loc,
		Logger:   &logger,
		Settle:   cfg.ReportCacheSettle,
	}
	refresher := &reporting.Refresher{Source: aggregator, Interval: cfg.ReportRefreshInterval, Logger: &logger}
	if err := refresher.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start report refresher")
	}
	defer refresher.Stop()

	authSvc, err := auth.NewService(auth.Config{
		Staff:          people,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init auth service")
	}
	authMiddleware := auth.Middleware{Service: authSvc, AccessCookie: cfg.AccessCookieName}
	authHandler := &auth.Handler{
		Service:          authSvc,
		AccessCookieName: cfg.AccessCookieName,
		CookieDomain:     cfg.CookieDomain,
		CookieSecure:     cfg.CookieSecure,
		CookieSameSite:   cfg.CookieSameSite,
	}
	loginLimiter, err := ratelimit.New(cfg.LoginRateLimit, "ratelimit:login", redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("init login rate limiter")
	}
	loginLimit := ratelimit.Handler{
		Limiter: loginLimiter,
		Key:     ratelimit.ByClientIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("login rate limiter unavailable") },
	}

	var auditStore audit.Store = &audit.MemoryStore{Max: cfg.AuditMaxEntries}
	if redisClient != nil {
		auditStore = audit.RedisStore{R: redisClient, MaxLen: int64(cfg.AuditMaxEntries)}
	}
	auditSvc := &audit.Service{Store: auditStore, Enabled: cfg.AuditEnabled, SamplingRate: cfg.AuditSamplingRate, Logger: &logger}
	auditRecorder := audit.HTTPRecorder{
		Service: auditSvc,
		OnError: func(err error) { logger.Warn().Err(err).Msg("audit record failed") },
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	cartHandler := &cart.Handler{Svc: cartSvc}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Catalog: menu})
	directoryHandler := &directory.Handler{Dir: people}
	reportHandler := &reporting.Handler{Aggregator: aggregator, Refresher: refresher}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.SpanEnricher)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.CookieSecure}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

	if httpMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if pprofUser := os.Getenv("OBS_PPROF_BASIC_AUTH_USER"); pprofUser != "" {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), pprofUser, os.Getenv("OBS_PPROF_BASIC_AUTH_PASS")))
	}

	healthHandler := health.Handler{Probes: probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.CSRF{SessionCookie: cfg.AccessCookieName}.Middleware)

		v.Route("/auth", func(a chi.Router) {
			a.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			a.Post("/logout", authHandler.Logout)
			a.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)

			p.Route("/catalog", catalogHandler.Routes)
			p.Get("/customers", directoryHandler.Customers)
			p.Get("/staff", directoryHandler.Staff)

			p.Route("/carts", func(c chi.Router) {
				c.Use(auditRecorder.Middleware(audit.HTTPConfig{ResourceIDParam: "id"}))
				cartHandler.Routes(c, func(id chi.Router) {
					id.With(idem.Middleware).Post("/pay", checkoutHandler.Pay)
				})
			})

			p.Route("/reports", reportHandler.Routes)
			p.With(auth.RequireManager).Get("/audit", audit.Handler{Service: auditSvc}.List)
		})
	})

	var handler http.Handler = r
	if tracingEnabled {
		handler = otelhttp.NewHandler(r, "http.server")
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("ledger", cfg.LedgerDriver).Bool("redis", redisClient != nil).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func initRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set; carts and locks are process-local")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.Obs.EnablePrometheus {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func openLedger(ctx context.Context, cfg *config.Config, logger zerolog.Logger, probes map[string]health.Probe) (ledger.Repository, func()) {
	switch cfg.LedgerDriver {
	case config.LedgerFile:
		store, err := ledger.OpenFileStore(cfg.LedgerFilePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.LedgerFilePath).Msg("open ledger file")
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("close ledger file")
			}
		}
	case config.LedgerPostgres:
		if err := ledger.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate ledger schema")
		}
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse database config")
		}
		poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
		if poolConfig.ConnConfig.RuntimeParams == nil {
			poolConfig.ConnConfig.RuntimeParams = map[string]string{}
		}
		poolConfig.ConnConfig.RuntimeParams["application_name"] = "salon-pos-api"
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		if err := pool.Ping(connectCtx); err != nil {
			logger.Fatal().Err(err).Msg("ping database")
		}
		store := &ledger.PostgresStore{Pool: pool}
		probes["ledger"] = store.Ping
		return store, pool.Close
	default:
		logger.Warn().Msg("in-memory ledger: transactions are lost on restart")
		return ledger.NewMemoryStore(), func() {}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, fmt.Sprintf("%d unauthorised", http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
