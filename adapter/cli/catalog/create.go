package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
)

var (
	pkgName        string
	pkgDescription string
	pkgPrice       string
	pkgDays        int
	pkgRole        string
	pkgStatus      string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a service package",
	Long: `Create a service package that grants a role for a number of days.

Examples:
  keystone package create --name "Coach Monthly" --price 49.99 --days 30 --role Coach
  keystone package create --name "Legacy" --price 10 --days 7 --role Legacy --status inactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.CreatePackageHandler == nil {
			return errNoCatalog
		}

		price, err := decimal.NewFromString(pkgPrice)
		if err != nil {
			return fmt.Errorf("invalid price %q", pkgPrice)
		}

		result, err := app.CreatePackageHandler.Handle(cmd.Context(), commands.CreatePackageCommand{
			Name:           pkgName,
			Description:    pkgDescription,
			Price:          price,
			DurationDays:   pkgDays,
			AssociatedRole: pkgRole,
			Status:         pkgStatus,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created package: %s (ID: %s)\n", pkgName, result.PackageID)
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&pkgName, "name", "", "package name")
	createCmd.Flags().StringVar(&pkgDescription, "description", "", "package description")
	createCmd.Flags().StringVar(&pkgPrice, "price", "", "price, e.g. 49.99")
	createCmd.Flags().IntVar(&pkgDays, "days", 30, "subscription length in days")
	createCmd.Flags().StringVar(&pkgRole, "role", "", "role granted while subscribed")
	createCmd.Flags().StringVar(&pkgStatus, "status", "", "active or inactive (default active)")
}
