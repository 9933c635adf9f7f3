package catalog

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
)

var deleteID string

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a service package",
	Long: `Delete a service package. Packages with active subscriptions cannot
be deleted; mark them inactive instead.

Examples:
  keystone package delete --id <id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.DeletePackageHandler == nil {
			return errNoCatalog
		}
		id, err := parseID(deleteID, "package id")
		if err != nil {
			return err
		}

		if err := app.DeletePackageHandler.Handle(cmd.Context(), commands.DeletePackageCommand{PackageID: id}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted package: %s\n", id)
		return nil
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteID, "id", "", "package ID")
}
