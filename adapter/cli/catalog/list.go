package catalog

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

var (
	listActiveOnly bool
	showID         string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List service packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListPackagesHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Package listing requires database connection.")
			return nil
		}

		pkgs, err := app.ListPackagesHandler.Handle(cmd.Context(), queries.ListPackagesQuery{OnlyActive: listActiveOnly})
		if err != nil {
			return err
		}
		if len(pkgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No packages found.")
			return nil
		}

		printPackages(cmd.OutOrStdout(), pkgs)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a service package with its best current promotion",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.GetPackageHandler == nil {
			return errNoCatalog
		}
		id, err := parseID(showID, "package id")
		if err != nil {
			return err
		}

		pkg, err := app.GetPackageHandler.Handle(cmd.Context(), queries.GetPackageQuery{PackageID: id})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Package: %s\n", pkg.Name)
		fmt.Fprintf(out, "  ID:       %s\n", pkg.ID)
		fmt.Fprintf(out, "  Role:     %s\n", pkg.AssociatedRole)
		fmt.Fprintf(out, "  Duration: %d days\n", pkg.DurationDays)
		fmt.Fprintf(out, "  Status:   %s\n", pkg.Status)
		fmt.Fprintf(out, "  Price:    %s\n", pkg.Price.StringFixed(2))
		if pkg.PromotionID != nil {
			fmt.Fprintf(out, "  Promo:    %s (promotion %s)\n", pkg.EffectivePrice.StringFixed(2), *pkg.PromotionID)
		}
		if pkg.Description != "" {
			fmt.Fprintf(out, "\n%s\n", pkg.Description)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listActiveOnly, "active", false, "only list active packages")
	showCmd.Flags().StringVar(&showID, "id", "", "package ID")
}
