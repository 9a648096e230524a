package main

import (
	"github.com/flowbot/media-migrator/internal/store"
	"github.com/flowbot/media-migrator/pkg/migrations"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the mapping table migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		if err != nil {
			return errors.Wrap(err, "reading configuration")
		}
		defer done()

		zap.S().Info("initializing data store")
		db, err := store.InitDB(cfg)
		if err != nil {
			return errors.Wrap(err, "initializing data store")
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := migrations.MigrateStore(db, cfg); err != nil {
			return errors.Wrap(err, "running migrations")
		}

		zap.S().Info("mapping table migrated")
		return nil
	},
}
