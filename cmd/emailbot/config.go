package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kathanp/emailbot/pkg/config"
	"github.com/kathanp/emailbot/pkg/delivery"
	"github.com/kathanp/emailbot/pkg/logger"
	"github.com/kathanp/emailbot/pkg/plans"
)

type appConfig struct {
	Env       string   `env:"APP_ENV" envDefault:"development"`
	Name      string   `env:"APP_NAME" envDefault:"emailbot"`
	LogLevel  string   `env:"LOG_LEVEL"`
	PlansFile string   `env:"PLANS_FILE"`
	Providers []string `env:"DELIVERY_PROVIDERS" envSeparator:"," envDefault:"dev"`
	DevOutbox string   `env:"DEV_OUTBOX_DIR" envDefault:"./data/outbox"`
	// NotifyFrom enables plan change emails through Postmark when set.
	NotifyFrom string `env:"NOTIFY_FROM"`
	// SyncCampaigns makes POST /campaigns block until dispatch finishes.
	SyncCampaigns bool `env:"CAMPAIGN_SYNC" envDefault:"false"`
}

func loadEnvFiles(paths []string) error {
	return config.LoadEnv(paths...)
}

func newLogger(cfg appConfig) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(logger.RequestIDExtractor, logger.UserIDExtractor),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	return logger.New(opts...)
}

// loadCatalog returns the built-in catalog unless PLANS_FILE points at a YAML override.
func loadCatalog(cfg appConfig) (*plans.Catalog, error) {
	if cfg.PlansFile == "" {
		return plans.Default(), nil
	}
	return plans.LoadFile(cfg.PlansFile)
}

// enabledKinds parses DELIVERY_PROVIDERS, rejecting unknown names and duplicates.
func enabledKinds(names []string) (map[delivery.Kind]bool, error) {
	out := make(map[delivery.Kind]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := delivery.ParseKind(name)
		if err != nil {
			return nil, err
		}
		if out[k] {
			return nil, fmt.Errorf("delivery provider %q listed twice", name)
		}
		out[k] = true
	}
	return out, nil
}
