package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/kathanp/emailbot/pkg/config"
	mdb "github.com/kathanp/emailbot/pkg/mongo"
	"github.com/kathanp/emailbot/svc/store"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create the MongoDB indexes and exit",
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		var (
			app  appConfig
			mcfg mdb.Config
		)
		if err := errors.Join(config.Load(&app), config.Load(&mcfg)); err != nil {
			return err
		}
		log := newLogger(app)
		ctx := cmd.Context()

		db, err := mdb.Open(ctx, mcfg, log)
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, db.Client().Disconnect(context.WithoutCancel(ctx)))
		}()

		if err := store.EnsureIndexes(ctx, db); err != nil {
			return err
		}
		log.InfoContext(ctx, "indexes ensured", "database", mcfg.Database)
		return nil
	},
}
