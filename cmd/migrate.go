package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"policy-reasoner/api/pkg/config"
	"policy-reasoner/api/pkg/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the policy store's schema to DATABASE_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("migrate: DATABASE_URL is not set (sqlite backends need no migration)")
		}

		ctx := cmd.Context()
		pool, err := db.Connect(ctx, db.DefaultConfig(cfg.DatabaseURL))
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Println("policy store schema applied")
		return nil
	},
}
