package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelmint/pixelmint-backend/api/controllers"
	webhookcontrollers "github.com/pixelmint/pixelmint-backend/api/controllers/webhooks"
	"github.com/pixelmint/pixelmint-backend/api/middleware"
	checkoutsvc "github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/internal/credits"
	"github.com/pixelmint/pixelmint-backend/internal/generation"
	creemwebhook "github.com/pixelmint/pixelmint-backend/internal/webhooks/creem"
	"github.com/pixelmint/pixelmint-backend/internal/users"
	stripewebhook "github.com/pixelmint/pixelmint-backend/internal/webhooks/stripe"
	"github.com/pixelmint/pixelmint-backend/pkg/config"
	"github.com/pixelmint/pixelmint-backend/pkg/db"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/redis"
	"github.com/pixelmint/pixelmint-backend/pkg/storage/gcs"
	"github.com/pixelmint/pixelmint-backend/pkg/stripe"
)

// NewRouter mounts every HTTP route. Optional dependencies (storage, payment
// providers) may be nil; their routes then answer with an internal error.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gcsClient gcs.Pinger,
	gatherer prometheus.Gatherer,
	creditsService credits.Service,
	generationService generation.Service,
	checkoutService checkoutsvc.Service,
	usersRepo *users.Repository,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	creemWebhookService *creemwebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.PublicURL),
	)

	generatePolicy := middleware.NewRateLimitPolicy(
		"generate",
		cfg.RateLimit.GenerateWindow,
		cfg.RateLimit.GenerateLimit,
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["db"] = dbP
	}
	if redisClient != nil {
		readiness["redis"] = redisClient
	}
	if gcsClient != nil {
		readiness["storage"] = gcsClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	var stripeEvents webhookcontrollers.StripeEventConstructor
	if stripeClient != nil {
		stripeEvents = stripeClient
	}
	var stripeEventService webhookcontrollers.StripeWebhookService
	if stripeWebhookService != nil {
		stripeEventService = stripeWebhookService
	}
	var creemEventService webhookcontrollers.CreemWebhookService
	if creemWebhookService != nil {
		creemEventService = creemWebhookService
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/public/ping", controllers.PublicPing())
		r.Get("/billing/products", controllers.ListProducts(checkoutService, logg))
		r.Get("/models", controllers.ListModels(generationService, logg))

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeEventService, stripeEvents, logg))
			r.Post("/creem", webhookcontrollers.CreemWebhook(creemEventService, cfg.Creem.WebhookSecret, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			if redisClient != nil {
				r.Use(middleware.Idempotency(redisClient, cfg.RateLimit.IdempotencyTTL, logg))
			}

			r.Get("/ping", controllers.PrivatePing())
			r.Get("/credits", controllers.GetCredits(creditsService, logg))
			r.Get("/image/jobs/{jobId}", controllers.GetImageJob(generationService, logg))

			r.Group(func(r chi.Router) {
				if usersRepo != nil {
					r.Use(middleware.EnsureUser(usersRepo, logg))
					r.Get("/me", controllers.GetMe(usersRepo, logg))
				}
				r.Post("/billing/checkout", controllers.CreateCheckout(checkoutService, logg))
			})

			r.Group(func(r chi.Router) {
				if redisClient != nil {
					r.Use(middleware.UserRateLimit(generatePolicy, redisClient, logg))
				}
				r.Post("/image/generate", controllers.GenerateImage(generationService, logg))
				r.Post("/text/generate", controllers.GenerateText(generationService, logg))
			})
		})
	})

	return r
}
