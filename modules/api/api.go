// Package api serves the JSON HTTP interface over the account, billing and
// campaign services.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"

	"github.com/kathanp/emailbot/handler"
	"github.com/kathanp/emailbot/pkg/clientip"
	"github.com/kathanp/emailbot/pkg/httpserver"
	"github.com/kathanp/emailbot/pkg/jwt"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/metrics"
	"github.com/kathanp/emailbot/pkg/ratelimiter"
	"github.com/kathanp/emailbot/pkg/requestid"
)

type Config struct {
	AllowedOrigins []string           `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	TrustProxy     bool               `env:"TRUST_PROXY_HEADERS" envDefault:"false"`
	ReadyTimeout   time.Duration      `env:"READY_TIMEOUT" envDefault:"2s"`
	AuthRate       ratelimiter.Config
}

// Deps are the collaborators behind the routes. Every field except Metrics
// and Ready is required.
type Deps struct {
	Tokens    *jwt.Service
	Accounts  Accounts
	Billing   Billing
	Quota     Quota
	Files     Files
	Templates Templates
	Senders   Senders
	Campaigns Campaigns
	Metrics   *metrics.Metrics
	Ready     map[string]httpserver.Check
	Logger    *slog.Logger
}

var ErrMissingDependency = errors.New("api: missing dependency")

type API struct {
	deps     Deps
	log      *slog.Logger
	validate *validator.Validate
	onError  handler.ErrorHandler
}

// New builds the router.
func New(cfg Config, deps Deps) (http.Handler, error) {
	if err := deps.check(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("api"))

	limiter, err := ratelimiter.New(cfg.AuthRate)
	if err != nil {
		return nil, err
	}

	a := &API{
		deps:     deps,
		log:      log,
		validate: newValidator(),
		onError:  handler.NewErrorHandler(log, classify),
	}

	var proxyHeaders []string
	if cfg.TrustProxy {
		proxyHeaders = clientip.DefaultHeaders
	}

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware,
		clientip.Middleware(proxyHeaders...),
		a.recoverer,
		a.accessLog,
		cors.New(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", requestid.Header},
			ExposedHeaders:   []string{requestid.Header},
			AllowCredentials: true,
			MaxAge:           300,
		}).Handler,
	)
	if deps.Metrics != nil {
		r.Use(a.observe)
	}
	r.NotFound(a.status(handler.ErrNotFound))
	r.MethodNotAllowed(a.status(handler.NewHTTPError(http.StatusMethodNotAllowed, "method_not_allowed")))

	r.Get("/health/live", httpserver.Live())
	r.Get("/health/ready", httpserver.Ready(log, cfg.ReadyTimeout, deps.Ready))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Post("/webhooks/stripe", a.stripeWebhook)

	r.Route("/auth", func(r chi.Router) {
		r.Use(ratelimiter.Middleware(limiter, byClientIP, a.status(handler.NewHTTPError(http.StatusTooManyRequests, "rate_limited"))))
		r.Post("/register", route(a, a.register, jsonBody))
		r.Post("/login", route(a, a.login, jsonBody))
		r.Get("/google", route(a, a.googleAuthURL))
		r.Get("/google/callback", route(a, a.googleCallback))
	})

	r.Get("/plans", route(a, a.plans))

	r.Group(func(r chi.Router) {
		r.Use(jwt.Middleware(deps.Tokens, a.unauthorized))

		r.Get("/me", route(a, a.me))
		r.Get("/usage", route(a, a.usage))
		r.Put("/subscription", route(a, a.changePlan, jsonBody))
		r.Delete("/subscription", route(a, a.cancelSubscription))
		r.Get("/billing/payment-methods", route(a, a.paymentMethods))

		r.Route("/files", func(r chi.Router) {
			r.Post("/", a.uploadFile)
			r.Get("/", route(a, a.listFiles))
			r.Get("/{id}", route(a, a.getFile, pathParams))
			r.Get("/{id}/download", route(a, a.downloadFile, pathParams))
			r.Delete("/{id}", route(a, a.deleteFile, pathParams))
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", route(a, a.createTemplate, jsonBody))
			r.Get("/", route(a, a.listTemplates))
			r.Get("/{id}", route(a, a.getTemplate, pathParams))
			r.Delete("/{id}", route(a, a.deleteTemplate, pathParams))
			r.Post("/{id}/validate", route(a, a.validateTemplate, pathParams, jsonBody))
		})

		r.Route("/senders", func(r chi.Router) {
			r.Post("/", route(a, a.addSender, jsonBody))
			r.Get("/", route(a, a.listSenders))
			r.Get("/providers", route(a, a.senderProviders))
			r.Post("/{id}/refresh", route(a, a.refreshSender, pathParams))
			r.Delete("/{id}", route(a, a.deleteSender, pathParams))
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", route(a, a.startCampaign, jsonBody))
			r.Get("/", route(a, a.listCampaigns))
			r.Get("/{id}", route(a, a.getCampaign, pathParams))
			r.Get("/{id}/logs", route(a, a.campaignLogs, pathParams))
		})
	})

	return r, nil
}

func (d Deps) check() error {
	required := []struct {
		name string
		ok   bool
	}{
		{"Tokens", d.Tokens != nil},
		{"Accounts", d.Accounts != nil},
		{"Billing", d.Billing != nil},
		{"Quota", d.Quota != nil},
		{"Files", d.Files != nil},
		{"Templates", d.Templates != nil},
		{"Senders", d.Senders != nil},
		{"Campaigns", d.Campaigns != nil},
	}
	for _, dep := range required {
		if !dep.ok {
			return fmt.Errorf("%w: %s", ErrMissingDependency, dep.name)
		}
	}
	return nil
}

func byClientIP(r *http.Request) string {
	return clientip.FromContext(r.Context())
}
