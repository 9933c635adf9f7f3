package catalog

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

var (
	promoPackageID   string
	promoID          string
	promoDescription string
	promoType        string
	promoValue       string
	promoFrom        string
	promoTo          string
	promoActiveOnly  bool
)

var promotionCmd = &cobra.Command{
	Use:     "promotion",
	Aliases: []string{"promo"},
	Short:   "Manage package promotions",
}

var promotionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Attach a promotion to a package",
	Long: `Attach a time-boxed discount to a package.

Examples:
  keystone package promotion create --package <id> --type percentage --value 20 \
    --from 2026-11-01 --to 2026-12-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.PromotionHandler == nil {
			return errNoCatalog
		}
		packageID, err := parseID(promoPackageID, "package id")
		if err != nil {
			return err
		}
		fields, err := promotionFields()
		if err != nil {
			return err
		}

		result, err := app.PromotionHandler.Create(cmd.Context(), commands.CreatePromotionCommand{
			PackageID:       packageID,
			PromotionFields: fields,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created promotion: %s\n", result.PromotionID)
		return nil
	},
}

var promotionUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Replace a promotion's terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.PromotionHandler == nil {
			return errNoCatalog
		}
		id, err := parseID(promoID, "promotion id")
		if err != nil {
			return err
		}
		fields, err := promotionFields()
		if err != nil {
			return err
		}

		if err := app.PromotionHandler.Update(cmd.Context(), commands.UpdatePromotionCommand{
			PromotionID:     id,
			PromotionFields: fields,
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Updated promotion: %s\n", id)
		return nil
	},
}

var promotionDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a promotion",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.PromotionHandler == nil {
			return errNoCatalog
		}
		id, err := parseID(promoID, "promotion id")
		if err != nil {
			return err
		}

		if err := app.PromotionHandler.Delete(cmd.Context(), commands.DeletePromotionCommand{PromotionID: id}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted promotion: %s\n", id)
		return nil
	},
}

var promotionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a package's promotions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListPromotionsHandler == nil {
			return errNoCatalog
		}
		packageID, err := parseID(promoPackageID, "package id")
		if err != nil {
			return err
		}

		promos, err := app.ListPromotionsHandler.Handle(cmd.Context(), queries.ListPromotionsQuery{
			PackageID:  packageID,
			ActiveOnly: promoActiveOnly,
		})
		if err != nil {
			return err
		}
		if len(promos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No promotions found.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tVALUE\tFROM\tTO\tACTIVE")
		for _, p := range promos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
				p.ID, p.DiscountType, p.DiscountValue.String(),
				p.ValidFrom.Format(time.DateOnly), p.ValidTo.Format(time.DateOnly), p.Active)
		}
		return tw.Flush()
	},
}

func promotionFields() (commands.PromotionFields, error) {
	value, err := decimal.NewFromString(promoValue)
	if err != nil {
		return commands.PromotionFields{}, fmt.Errorf("invalid discount value %q", promoValue)
	}
	from, err := parseDate(promoFrom, "from")
	if err != nil {
		return commands.PromotionFields{}, err
	}
	to, err := parseDate(promoTo, "to")
	if err != nil {
		return commands.PromotionFields{}, err
	}
	return commands.PromotionFields{
		Description:   promoDescription,
		DiscountType:  promoType,
		DiscountValue: value,
		ValidFrom:     from,
		ValidTo:       to,
	}, nil
}

// parseDate accepts a date or an RFC 3339 timestamp.
func parseDate(raw, name string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date %q (use YYYY-MM-DD)", name, raw)
	}
	return t.UTC(), nil
}

func init() {
	for _, c := range []*cobra.Command{promotionCreateCmd, promotionUpdateCmd} {
		c.Flags().StringVar(&promoDescription, "description", "", "promotion description")
		c.Flags().StringVar(&promoType, "type", "percentage", "percentage or fixed_amount")
		c.Flags().StringVar(&promoValue, "value", "", "discount value")
		c.Flags().StringVar(&promoFrom, "from", "", "first day of the promotion")
		c.Flags().StringVar(&promoTo, "to", "", "end of the promotion")
	}
	promotionCreateCmd.Flags().StringVar(&promoPackageID, "package", "", "package ID")
	promotionListCmd.Flags().StringVar(&promoPackageID, "package", "", "package ID")
	promotionListCmd.Flags().BoolVar(&promoActiveOnly, "active", false, "only list promotions active now")
	promotionUpdateCmd.Flags().StringVar(&promoID, "id", "", "promotion ID")
	promotionDeleteCmd.Flags().StringVar(&promoID, "id", "", "promotion ID")

	promotionCmd.AddCommand(promotionCreateCmd)
	promotionCmd.AddCommand(promotionUpdateCmd)
	promotionCmd.AddCommand(promotionDeleteCmd)
	promotionCmd.AddCommand(promotionListCmd)
}
