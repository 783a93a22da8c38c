package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the ledger migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := loadDatabaseConfig(v)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), v.GetString("log-level")).With("command", "migrate")

			ctx := cmd.Context()

			ledger, closeLedger, err := openLedger(ctx, cfg, observers{logger: logger})
			if err != nil {
				return err
			}
			defer closeLedger()

			if err := ledger.Migrate(ctx); err != nil {
				return err
			}

			logger.Info("ledger migrated", "table_prefix", cfg.TablePrefix)

			return nil
		},
	}
}
