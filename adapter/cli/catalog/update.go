package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

var (
	updateID          string
	updateName        string
	updateDescription string
	updatePrice       string
	updateDays        int
	updateRole        string
	updateStatus      string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a service package",
	Long: `Update a service package. Unset flags keep their current value.

Changing the role or duration does not touch existing subscriptions; the
next reconciliation of each subscriber picks up the new role.

Examples:
  keystone package update --id <id> --price 39.99
  keystone package update --id <id> --status inactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.UpdatePackageHandler == nil || app.GetPackageHandler == nil {
			return errNoCatalog
		}
		id, err := parseID(updateID, "package id")
		if err != nil {
			return err
		}

		current, err := app.GetPackageHandler.Handle(cmd.Context(), queries.GetPackageQuery{PackageID: id})
		if err != nil {
			return err
		}

		c := commands.UpdatePackageCommand{
			PackageID:      id,
			Name:           current.Name,
			Description:    current.Description,
			Price:          current.Price,
			DurationDays:   current.DurationDays,
			AssociatedRole: current.AssociatedRole,
			Status:         current.Status,
		}
		flags := cmd.Flags()
		if flags.Changed("name") {
			c.Name = updateName
		}
		if flags.Changed("description") {
			c.Description = updateDescription
		}
		if flags.Changed("price") {
			if c.Price, err = decimal.NewFromString(updatePrice); err != nil {
				return fmt.Errorf("invalid price %q", updatePrice)
			}
		}
		if flags.Changed("days") {
			c.DurationDays = updateDays
		}
		if flags.Changed("role") {
			c.AssociatedRole = updateRole
		}
		if flags.Changed("status") {
			c.Status = updateStatus
		}

		if err := app.UpdatePackageHandler.Handle(cmd.Context(), c); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated package: %s\n", id)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updateID, "id", "", "package ID")
	updateCmd.Flags().StringVar(&updateName, "name", "", "package name")
	updateCmd.Flags().StringVar(&updateDescription, "description", "", "package description")
	updateCmd.Flags().StringVar(&updatePrice, "price", "", "price, e.g. 49.99")
	updateCmd.Flags().IntVar(&updateDays, "days", 0, "subscription length in days")
	updateCmd.Flags().StringVar(&updateRole, "role", "", "role granted while subscribed")
	updateCmd.Flags().StringVar(&updateStatus, "status", "", "active or inactive")
}
