package main

import (
	"github.com/spf13/cobra"

	"github.com/linqan85-spec/spendo-sub000/config"
	"github.com/linqan85-spec/spendo-sub000/pkg/database"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, flush, err := opts.load()
			if err != nil {
				return err
			}
			defer flush()

			db, err := database.Open(cmd.Context(), connectionConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return migrationService(cfg, logger).Migrate(cfg.DatabaseName, db)
		},
	}
}

func connectionConfig(cfg *config.Config) database.ConnectionConfig {
	return database.ConnectionConfig{
		Driver:          cfg.DatabaseDriver,
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}
