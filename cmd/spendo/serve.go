package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/linqan85-spec/spendo-sub000/config"
	"github.com/linqan85-spec/spendo-sub000/internal/handlers"
	"github.com/linqan85-spec/spendo-sub000/pkg/database"
	"github.com/linqan85-spec/spendo-sub000/pkg/fortnox"
	"github.com/linqan85-spec/spendo-sub000/pkg/health"
	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/kafka"
	"github.com/linqan85-spec/spendo-sub000/pkg/kleer"
	"github.com/linqan85-spec/spendo-sub000/pkg/middleware"
	"github.com/linqan85-spec/spendo-sub000/pkg/reconcile"
	appredis "github.com/linqan85-spec/spendo-sub000/pkg/redis"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/startup"
	"github.com/linqan85-spec/spendo-sub000/pkg/syncer"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing/exporters"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := opts.load()
			if err != nil {
				return err
			}
			defer flush()

			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		OTLPEnabled: cfg.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	var (
		db          database.DB
		redisClient *appredis.Client
	)
	kafkaCfg := kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaSyncTopic)
	kafkaCfg.PublishTimeout = cfg.KafkaPublishTimeout
	producer := kafka.NewProducer(kafkaCfg, logger)

	deps := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	deps.AddDependency(&startup.Func{
		Name: "postgres",
		StartFunc: func(ctx context.Context) error {
			db, err = database.Open(ctx, connectionConfig(cfg), logger)
			return err
		},
		StopFunc: func(context.Context) error { return db.Close() },
	})
	deps.AddDependency(&startup.Func{
		Name:     "migrations",
		Requires: []string{"postgres"},
		StartFunc: func(context.Context) error {
			return migrationService(cfg, logger).Migrate(cfg.DatabaseName, db)
		},
	})
	if cfg.UpstreamRateLimit > 0 {
		deps.AddDependency(&startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				redisClient, err = appredis.NewClient(ctx, appredis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, logger)
				return err
			},
			StopFunc: func(context.Context) error { return redisClient.Close() },
		})
	}
	deps.AddDependency(&startup.Func{
		Name:     "kafka",
		StopFunc: func(context.Context) error { return producer.Close() },
	})

	if err := deps.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := deps.Stop(context.Background()); err != nil {
			logger.WithError(err).Warn("failed to stop dependencies cleanly")
		}
	}()

	verifier, err := tokenVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	companies := repositories.NewCompanyRepository(db, logger)
	integrations := repositories.NewIntegrationRepository(db, logger)
	engine := reconcile.NewEngine(
		repositories.NewVendorRepository(db, logger),
		repositories.NewExpenseRepository(db, logger),
		logger,
	)

	var throttle upstream.Throttle
	if redisClient != nil {
		throttle = appredis.NewRateLimiter(redisClient, "spendo:upstream", cfg.UpstreamRateLimit, cfg.UpstreamRateWindow)
	}

	client := httpclient.NewClient(httpclient.Config{
		Timeout:         cfg.UpstreamTimeout,
		MaxIdleConns:    httpclient.DefaultConfig().MaxIdleConns,
		IdleConnTimeout: httpclient.DefaultConfig().IdleConnTimeout,
	}, logger)

	oauth := fortnox.NewOAuth(fortnox.OAuthConfig{
		ClientID:     cfg.FortnoxClientID,
		ClientSecret: cfg.FortnoxClientSecret,
		AuthURL:      cfg.FortnoxAuthURL,
		TokenURL:     cfg.FortnoxTokenURL,
		RedirectURI:  cfg.FortnoxRedirectURI,
		Scopes:       fortnox.ParseScopes(cfg.FortnoxScopes),
	}, client, logger)
	if err := oauth.Configured(); err != nil {
		logger.WithError(err).Warn("Fortnox is not configured; its endpoints will fail until it is")
	}

	fortnoxProvider := fortnox.NewProvider(fortnox.ProviderConfig{
		APIURL:   cfg.FortnoxAPIURL,
		PageSize: cfg.FortnoxPageSize,
		Throttle: throttle,
	}, oauth, client, integrations, logger)
	kleerProvider := kleer.NewProvider(kleer.Config{
		APIURL:        cfg.KleerAPIURL,
		PageSize:      cfg.KleerPageSize,
		VerifyTimeout: cfg.KleerVerifyTimeout,
		Throttle:      throttle,
	}, client, integrations, logger)

	svc := syncer.NewService(companies, integrations, engine, producer, logger, fortnoxProvider, kleerProvider)

	checker := health.NewChecker(version)
	checker.AddCheck("postgres", health.PingFunc(db.PingContext))
	if redisClient != nil {
		checker.AddCheck("redis", health.PingFunc(redisClient.Ping))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.CORS(cfg.AllowOrigins, cfg.AllowMethods))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health/live", checker.LivenessHandler)
	e.GET("/health/ready", checker.ReadinessHandler)

	handlers.Routes{
		Fortnox: handlers.NewFortnoxHandler(
			oauth,
			fortnox.NewConnector(oauth, integrations, cfg.AppURL, cfg.AppIntegrationsPath, logger),
			svc, companies, integrations, logger,
		),
		Kleer:        handlers.NewKleerHandler(kleerProvider, svc, companies),
		Integrations: handlers.NewIntegrationHandler(svc, integrations),
	}.Register(e, middleware.Authentication(logger, verifier))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	checker.SetReady(true)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func tokenVerifier(ctx context.Context, cfg *config.Config) (middleware.TokenVerifier, error) {
	switch {
	case !cfg.AuthEnabled:
		return nil, nil
	case cfg.AuthIssuerURL != "":
		return middleware.NewOIDCVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
	case cfg.AuthJWTSecret != "":
		return middleware.NewJWTVerifier(cfg.AuthJWTSecret), nil
	default:
		return nil, errors.New("AUTH_ENABLED requires AUTH_ISSUER_URL or AUTH_JWT_SECRET")
	}
}

func migrationService(cfg *config.Config, logger ectologger.Logger) *database.MigrationService {
	return database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
}
