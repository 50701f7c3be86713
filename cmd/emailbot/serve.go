package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kathanp/emailbot/modules/api"
	"github.com/kathanp/emailbot/pkg/config"
	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/dispatch"
	"github.com/kathanp/emailbot/pkg/httpserver"
	"github.com/kathanp/emailbot/pkg/jwt"
	"github.com/kathanp/emailbot/pkg/metrics"
	mdb "github.com/kathanp/emailbot/pkg/mongo"
	"github.com/kathanp/emailbot/pkg/secrets"
	"github.com/kathanp/emailbot/pkg/storage"
	"github.com/kathanp/emailbot/svc/account"
	"github.com/kathanp/emailbot/svc/billing"
	"github.com/kathanp/emailbot/svc/campaign"
	"github.com/kathanp/emailbot/svc/contacts"
	"github.com/kathanp/emailbot/svc/quota"
	"github.com/kathanp/emailbot/svc/senders"
	"github.com/kathanp/emailbot/svc/store"
	"github.com/kathanp/emailbot/svc/templates"
)

var ensureIndexesOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&ensureIndexesOnStart, "ensure-indexes", true, "create missing MongoDB indexes before serving")
}

type serveConfig struct {
	App      appConfig
	Mongo    mdb.Config
	Storage  storage.Config
	HTTP     httpserver.Config
	API      api.Config
	JWT      jwt.Config
	Google   account.GoogleConfig
	Billing  billing.Config
	SES      delivery.SESConfig
	SMTP     delivery.SMTPConfig
	Postmark delivery.PostmarkConfig
	Secrets  secrets.Config
}

func loadServeConfig() (serveConfig, error) {
	var c serveConfig
	err := errors.Join(
		config.Load(&c.App),
		config.Load(&c.Mongo),
		config.Load(&c.Storage),
		config.Load(&c.HTTP),
		config.Load(&c.API),
		config.Load(&c.JWT),
		config.Load(&c.Google),
		config.Load(&c.Billing),
		config.Load(&c.SES),
		config.Load(&c.SMTP),
		config.Load(&c.Postmark),
		config.Load(&c.Secrets),
	)
	return c, err
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg.App)
	ctx := cmd.Context()

	var storeOpts []store.Option
	tokenCipher, err := secrets.NewFromConfig(cfg.Secrets)
	if err != nil {
		return err
	}
	if tokenCipher != nil {
		storeOpts = append(storeOpts, store.WithTokenCipher(tokenCipher))
	} else {
		log.Warn("TOKEN_ENCRYPTION_KEY is not set, Google tokens are stored unencrypted")
	}

	db, err := mdb.Open(ctx, cfg.Mongo, log)
	if err != nil {
		return err
	}
	disconnect := func(ctx context.Context) error { return db.Client().Disconnect(ctx) }

	if ensureIndexesOnStart {
		if err := store.EnsureIndexes(ctx, db); err != nil {
			_ = disconnect(context.WithoutCancel(ctx))
			return err
		}
	}

	app, err := wire(ctx, cfg, log, store.New(db, storeOpts...))
	if err != nil {
		_ = disconnect(context.WithoutCancel(ctx))
		return err
	}
	app.deps.Ready = map[string]httpserver.Check{"mongo": mdb.Healthcheck(db)}

	handler, err := api.New(cfg.API, app.deps)
	if err != nil {
		_ = disconnect(context.WithoutCancel(ctx))
		return err
	}

	srv := httpserver.NewFromConfig(cfg.HTTP,
		httpserver.WithLogger(log),
		httpserver.WithDrain("campaigns", drainCampaigns(app.campaigns)),
		httpserver.WithDrain("mongo", disconnect),
	)
	log.Info("starting emailbot",
		slog.String("version", version),
		slog.String("addr", cfg.HTTP.Addr),
		slog.Any("providers", app.senders.Kinds()),
	)
	return srv.Run(ctx, handler)
}

type application struct {
	deps      api.Deps
	campaigns *campaign.Service
	senders   *senders.Service
}

// wire builds every service over st. Storage and delivery clients are
// created here; the database connection is owned by the caller.
func wire(ctx context.Context, cfg serveConfig, log *slog.Logger, st *store.Store) (*application, error) {
	catalog, err := loadCatalog(cfg.App)
	if err != nil {
		return nil, err
	}
	kinds, err := enabledKinds(cfg.App.Providers)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	blobs, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	senderOpts, notifyVia, err := providerOptions(ctx, cfg, kinds)
	if err != nil {
		return nil, err
	}

	var notifier quota.Notifier = quota.NewLogNotifier(log)
	if cfg.App.NotifyFrom != "" && notifyVia != nil {
		notifier = quota.NewMailNotifier(log, notifyVia, cfg.App.NotifyFrom, catalog)
	}
	engine := quota.New(quota.NewMongoStore(st),
		quota.WithCatalog(catalog),
		quota.WithNotifier(notifier),
		quota.WithRecorder(m),
		quota.WithLogger(log),
	)

	senderSvc := senders.New(st.Senders, st.Users, engine, append(senderOpts, senders.WithLogger(log))...)

	dispatcher := dispatch.New(dispatch.WithLogger(log), dispatch.WithObserver(m))
	campaigns := campaign.New(campaign.NewMongoStore(st), engine, senderSvc, dispatcher,
		campaign.WithLogger(log),
		campaign.WithRecorder(m),
		campaign.WithAsync(!cfg.App.SyncCampaigns),
	)

	tokens, err := jwt.New(cfg.JWT)
	if err != nil {
		return nil, err
	}
	accountOpts := []account.Option{account.WithLogger(log)}
	if cfg.Google.Enabled() {
		accountOpts = append(accountOpts, account.WithGoogle(account.NewGoogle(cfg.Google.OAuth2()), cfg.Google.StateTTL))
	}

	billingOpts := []billing.Option{billing.WithLogger(log), billing.WithWebhookSecret(cfg.Billing.WebhookSecret)}
	if cfg.Billing.Enabled() {
		prices, err := billing.NewPrices(cfg.Billing.Prices, catalog)
		if err != nil {
			return nil, err
		}
		billingOpts = append(billingOpts, billing.WithGateway(billing.NewStripeGateway(cfg.Billing.SecretKey), prices))
	} else {
		log.Warn("STRIPE_SECRET_KEY is not set, plan changes are applied without payment")
	}

	return &application{
		deps: api.Deps{
			Tokens:    tokens,
			Accounts:  account.New(st.Users, tokens, accountOpts...),
			Billing:   billing.New(st.Users, engine, billingOpts...),
			Quota:     engine,
			Files:     contacts.New(st.Files, blobs, log),
			Templates: templates.New(st.Templates, st.Files, engine, log),
			Senders:   senderSvc,
			Campaigns: campaigns,
			Metrics:   m,
			Logger:    log,
		},
		campaigns: campaigns,
		senders:   senderSvc,
	}, nil
}

// providerOptions builds the delivery backends named in DELIVERY_PROVIDERS.
// The returned provider, when non-nil, carries plan change notifications.
func providerOptions(ctx context.Context, cfg serveConfig, kinds map[delivery.Kind]bool) ([]senders.Option, delivery.Provider, error) {
	var (
		opts     []senders.Option
		postmark delivery.Provider
	)
	if kinds[delivery.KindSES] {
		ses, err := delivery.NewSES(ctx, cfg.SES)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, senders.WithSES(ses))
	}
	if kinds[delivery.KindGmail] {
		if !cfg.Google.Enabled() {
			return nil, nil, fmt.Errorf("%w: gmail requires GOOGLE_OAUTH_CLIENT_ID and GOOGLE_OAUTH_CLIENT_SECRET", delivery.ErrInvalidConfig)
		}
		opts = append(opts, senders.WithGmail(senders.GmailFromOAuth(cfg.Google.OAuth2())))
	}
	if kinds[delivery.KindSMTP] {
		smtp, err := delivery.NewSMTP(cfg.SMTP)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, senders.WithProvider(smtp))
	}
	if kinds[delivery.KindPostmark] || (cfg.App.NotifyFrom != "" && cfg.Postmark.ServerToken != "") {
		p, err := delivery.NewPostmark(cfg.Postmark)
		if err != nil {
			return nil, nil, err
		}
		if kinds[delivery.KindPostmark] {
			opts = append(opts, senders.WithProvider(p))
		}
		postmark = p
	}
	if kinds[delivery.KindDev] {
		opts = append(opts, senders.WithProvider(delivery.NewDev(cfg.App.DevOutbox)))
	}
	return opts, postmark, nil
}

// drainCampaigns waits for background dispatches until the shutdown deadline.
func drainCampaigns(c *campaign.Service) httpserver.DrainFunc {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			c.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("campaigns still sending at shutdown: %w", ctx.Err())
		}
	}
}
