package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/pixelmint/pixelmint-backend/api/routes"
	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/internal/credits"
	"github.com/pixelmint/pixelmint-backend/internal/generation"
	"github.com/pixelmint/pixelmint-backend/internal/pricing"
	"github.com/pixelmint/pixelmint-backend/internal/providers"
	"github.com/pixelmint/pixelmint-backend/internal/users"
	creemwebhook "github.com/pixelmint/pixelmint-backend/internal/webhooks/creem"
	stripewebhook "github.com/pixelmint/pixelmint-backend/internal/webhooks/stripe"
	"github.com/pixelmint/pixelmint-backend/pkg/config"
	"github.com/pixelmint/pixelmint-backend/pkg/creem"
	"github.com/pixelmint/pixelmint-backend/pkg/db"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/metrics"
	"github.com/pixelmint/pixelmint-backend/pkg/migrate"
	"github.com/pixelmint/pixelmint-backend/pkg/redis"
	"github.com/pixelmint/pixelmint-backend/pkg/storage/gcs"
	"github.com/pixelmint/pixelmint-backend/pkg/stripe"
)

// shutdownGrace is added to the longest generation deadline when draining
// in-flight requests.
const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	generationMetrics := metrics.NewGenerationMetrics(registry)
	billingMetrics := metrics.NewBillingMetrics(registry)

	var (
		imageStore generation.Storage
		gcsPinger  gcs.Pinger
	)
	if cfg.Storage.BucketName != "" && cfg.FeatureFlags.PersistImages {
		gcsClient, err := gcs.NewClient(ctx, cfg.Storage, cfg.GCP, logg)
		if err != nil {
			return err
		}
		imageStore = gcsClient
		gcsPinger = gcsClient
	} else {
		logg.Warn(ctx, "image persistence disabled")
	}

	creditsService, err := credits.NewService(credits.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return err
	}

	modelRegistry, err := providers.NewRegistry(ctx, cfg.Providers)
	if err != nil {
		return err
	}

	timeouts := generation.TimeoutsFrom(cfg.Generation)
	generationService, err := generation.NewService(
		generation.NewRepository(dbClient.DB()),
		pricing.NewRepository(dbClient.DB()),
		modelRegistry,
		creditsService,
		imageStore,
		timeouts,
		generationMetrics,
		logg,
	)
	if err != nil {
		return err
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	processor, err := billing.NewProcessor(billing.ProcessorParams{
		Repo:              billingRepo,
		Ledger:            creditsService,
		TransactionRunner: dbClient,
		Metrics:           billingMetrics,
		Logger:            logg,
	})
	if err != nil {
		return err
	}

	catalog := checkout.DefaultCatalog()
	gateways := map[enums.PaymentProvider]checkout.Gateway{}

	var (
		stripeClient         *stripe.Client
		stripeWebhookService *stripewebhook.Service
		creemWebhookService  *creemwebhook.Service
	)
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = stripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		gateways[enums.PaymentProviderStripe] = checkout.NewStripeGateway()
		stripeWebhookService, err = stripewebhook.NewService(stripewebhook.ServiceParams{
			Processor: processor,
			Products:  checkout.NewProductIndex(catalog, cfg.Checkout.StripeProducts),
			Metrics:   billingMetrics,
			Logger:    logg,
		})
		if err != nil {
			return err
		}
	}
	if cfg.Creem.APIKey != "" {
		creemClient, err := creem.NewClient(cfg.Creem)
		if err != nil {
			return err
		}
		gateways[enums.PaymentProviderCreem] = checkout.NewCreemGateway(creemClient)
		creemWebhookService, err = creemwebhook.NewService(creemwebhook.ServiceParams{
			Processor: processor,
			Products:  checkout.NewProductIndex(catalog, cfg.Checkout.CreemProducts),
			Metrics:   billingMetrics,
			Logger:    logg,
		})
		if err != nil {
			return err
		}
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:             checkout.NewRepository(dbClient.DB()),
		Catalog:          catalog,
		Guard:            checkout.NewGuard(billingRepo),
		Gateways:         gateways,
		ProviderProducts: checkout.ProviderProductsFrom(cfg.Checkout),
		PublicURL:        cfg.App.PublicURL,
		SuccessPath:      cfg.Checkout.SuccessPath,
		CancelPath:       cfg.Checkout.CancelPath,
		Logger:           logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": len(gateways),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			gcsPinger,
			registry,
			creditsService,
			generationService,
			checkoutService,
			users.NewRepository(dbClient.DB()),
			stripeClient,
			stripeWebhookService,
			creemWebhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Longest()+shutdownGrace)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
