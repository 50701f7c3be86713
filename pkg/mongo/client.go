// Package mongo connects to MongoDB and manages collection indexes.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/kathanp/emailbot/pkg/logger"
)

// Connect dials the server and pings it, retrying up to cfg.RetryAttempts times.
// It gives up early when ctx is done.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*mongo.Client, error) {
	if log == nil {
		log = logger.Discard()
	}
	attempts := max(cfg.RetryAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err := mongo.Connect(
			options.Client().
				ApplyURI(cfg.ConnectionURL).
				SetConnectTimeout(cfg.ConnectTimeout).
				SetMaxPoolSize(cfg.MaxPoolSize).
				SetMinPoolSize(cfg.MinPoolSize).
				SetMaxConnIdleTime(cfg.MaxConnIdleTime).
				SetRetryWrites(true).
				SetRetryReads(true),
		)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return client, nil
			}
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}
		lastErr = err
		log.WarnContext(ctx, "mongo connection attempt failed",
			slog.Int("attempt", attempt), logger.Error(err))

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrFailedToConnect, lastErr)
}

// Open connects and returns the configured database.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (*mongo.Database, error) {
	client, err := Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return client.Database(cfg.Database), nil
}

// Healthcheck pings the server behind db.
func Healthcheck(db *mongo.Database) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.Client().Ping(ctx, nil); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Index describes one index on a collection.
type Index struct {
	Collection string
	Keys       bson.D
	Unique     bool
	Name       string
}

// EnsureIndexes creates the given indexes. Existing identical indexes are left alone by the server.
func EnsureIndexes(ctx context.Context, db *mongo.Database, indexes []Index) error {
	byColl := make(map[string][]mongo.IndexModel)
	order := []string{}
	for _, ix := range indexes {
		opts := options.Index()
		if ix.Unique {
			opts.SetUnique(true)
		}
		if ix.Name != "" {
			opts.SetName(ix.Name)
		}
		if _, ok := byColl[ix.Collection]; !ok {
			order = append(order, ix.Collection)
		}
		byColl[ix.Collection] = append(byColl[ix.Collection], mongo.IndexModel{Keys: ix.Keys, Options: opts})
	}
	for _, coll := range order {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, byColl[coll]); err != nil {
			return errors.Join(ErrCreateIndexes, fmt.Errorf("collection %s: %w", coll, err))
		}
	}
	return nil
}
