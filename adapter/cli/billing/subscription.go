package billing

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	billingApp "github.com/felixgeelhaar/keystone/internal/billing/application"
)

var (
	subUser         string
	subPackage      string
	subID           string
	subExtendDays   int
	subIncludeEnded bool
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe a user to a package",
	Long: `Grant a package to a user without a payment. An active subscription to
the same package is extended; otherwise a new one starts today.

Examples:
  keystone billing subscribe --user <user-id> --package <package-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.SubscriptionService == nil {
			return errNoBilling
		}
		userID, err := parseUser(subUser)
		if err != nil {
			return err
		}
		packageID, err := uuid.Parse(subPackage)
		if err != nil {
			return fmt.Errorf("invalid package id: %w", err)
		}

		sub, err := app.SubscriptionService.Subscribe(cmd.Context(), billingApp.SubscribeCommand{
			UserID:    userID,
			PackageID: packageID,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s active until %s\n", sub.ID, sub.EndDate.Format(time.DateOnly))
		return nil
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew",
	Short: "Extend a subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.SubscriptionService == nil {
			return errNoBilling
		}
		userID, err := parseUser(subUser)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(subID)
		if err != nil {
			return fmt.Errorf("invalid subscription id: %w", err)
		}

		sub, err := app.SubscriptionService.Renew(cmd.Context(), billingApp.RenewCommand{
			UserID:         userID,
			SubscriptionID: id,
			AdditionalDays: subExtendDays,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s renewed until %s\n", sub.ID, sub.EndDate.Format(time.DateOnly))
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a subscription and revoke its role",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.SubscriptionService == nil {
			return errNoBilling
		}
		userID, err := parseUser(subUser)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(subID)
		if err != nil {
			return fmt.Errorf("invalid subscription id: %w", err)
		}

		if err := app.SubscriptionService.Cancel(cmd.Context(), billingApp.CancelCommand{
			UserID:         userID,
			SubscriptionID: id,
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription %s cancelled\n", id)
		return nil
	},
}

var subscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List a user's subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.SubscriptionService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Subscription listing requires database connection.")
			return nil
		}
		userID, err := parseUser(subUser)
		if err != nil {
			return err
		}

		subs, err := app.SubscriptionService.ListUserSubscriptions(cmd.Context(), userID)
		if err != nil {
			return err
		}

		shown := 0
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPACKAGE\tROLE\tSTART\tEND\tSTATUS")
		for _, s := range subs {
			if !s.Active && !subIncludeEnded {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.PackageName, s.Role,
				s.StartDate.Format(time.DateOnly), s.EndDate.Format(time.DateOnly), s.Status)
			shown++
		}
		if shown == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions found.")
			return nil
		}
		return tw.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{subscribeCmd, renewCmd, cancelCmd, subscriptionsCmd} {
		c.Flags().StringVar(&subUser, "user", "", "user ID")
	}
	subscribeCmd.Flags().StringVar(&subPackage, "package", "", "package ID")
	renewCmd.Flags().StringVar(&subID, "id", "", "subscription ID")
	renewCmd.Flags().IntVar(&subExtendDays, "days", 30, "days to add")
	cancelCmd.Flags().StringVar(&subID, "id", "", "subscription ID")
	subscriptionsCmd.Flags().BoolVar(&subIncludeEnded, "all", false, "include expired and cancelled subscriptions")
}
