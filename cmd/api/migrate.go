package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Dan9191/finapi/internal/config"
	"github.com/Dan9191/finapi/internal/repository"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.StorageDriver != config.StorageDriverPostgres {
				return fmt.Errorf("migrate requires STORAGE_DRIVER=%s", config.StorageDriverPostgres)
			}

			db, err := openDatabase(cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.NewRepository(db).Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Schema is up to date")
			return nil
		},
	}
}
