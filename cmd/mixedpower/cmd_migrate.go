package main

import (
	"fmt"

	"mixedpower/adapters/sqlstore"
	apperrors "mixedpower/internal/errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd(e *env) *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if e.cfg.Database.URL == "" {
				return apperrors.ConfigInvalid("DATABASE_URL is required")
			}
			db, err := sqlstore.Open(ctx, e.cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			m := sqlstore.NewMigrator(db)
			w := cmd.OutOrStdout()
			if status {
				pending, err := m.Pending(ctx)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(w, "schema is up to date")
				}
				for _, v := range pending {
					fmt.Fprintf(w, "pending %s\n", v)
				}
				return nil
			}

			ran, err := m.Up(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "applied %d migration(s)\n", len(ran))
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "List pending migrations without applying them")
	return cmd
}
