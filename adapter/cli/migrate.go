package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/migrations"
)

var errMigrateNoDB = errors.New("migrations require database connection")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

// schemaCmd builds a migrate subcommand that optionally changes the schema
// and then prints the resulting version.
func schemaCmd(use, short string, change func(*cobra.Command, database.Connection) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := GetApp()
			if app == nil || app.DB == nil {
				return errMigrateNoDB
			}
			if change != nil {
				if err := change(cmd, app.DB); err != nil {
					return err
				}
			}
			v, err := migrations.Version(cmd.Context(), app.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d\n", v)
			return nil
		},
	}
}

func init() {
	migrateCmd.AddCommand(
		schemaCmd("up", "Apply all pending migrations", func(cmd *cobra.Command, db database.Connection) error {
			return migrations.Up(cmd.Context(), db)
		}),
		schemaCmd("down", "Roll back the most recent migration", func(cmd *cobra.Command, db database.Connection) error {
			return migrations.Down(cmd.Context(), db)
		}),
		schemaCmd("version", "Print the applied schema version", nil),
	)
	rootCmd.AddCommand(migrateCmd)
}
