package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
)

var (
	rolesUser  string
	sweepUser  string
	sweepAt    string
	sweepBatch int
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "Reconcile a user and print their roles",
	Long: `Expire lapsed subscriptions for the user, bring their roles in line
with what they still hold and print the result.

Examples:
  keystone billing roles --user <user-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.EntitlementService == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Role lookup requires database connection.")
			return nil
		}
		userID, err := parseUser(rolesUser)
		if err != nil {
			return err
		}

		roles, err := app.EntitlementService.ReconcileAndGetRoles(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(roles) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No roles.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Roles: %s\n", strings.Join(roles, ", "))
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire lapsed subscriptions",
	Long: `Expire subscriptions whose end date has passed and revoke the roles
they granted. Without --user every user with lapsed subscriptions is swept
and the ledger and outbox retention cleanup runs too.

Examples:
  keystone billing sweep
  keystone billing sweep --user <user-id>
  keystone billing sweep --at 2026-12-31T00:00:00Z`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Sweeper == nil {
			return errNoBilling
		}

		now := time.Now().UTC()
		if sweepAt != "" {
			t, err := time.Parse(time.RFC3339, sweepAt)
			if err != nil {
				return fmt.Errorf("invalid --at time %q", sweepAt)
			}
			now = t.UTC()
		}
		out := cmd.OutOrStdout()

		if sweepUser != "" {
			userID, err := parseUser(sweepUser)
			if err != nil {
				return err
			}
			result, err := app.Sweeper.Sweep(cmd.Context(), userID, now)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Expired %d subscription(s)\n", result.Expired)
			if len(result.Changes.Removed) > 0 {
				fmt.Fprintf(out, "Revoked: %s\n", strings.Join(result.Changes.Removed, ", "))
			}
			if len(result.Changes.Added) > 0 {
				fmt.Fprintf(out, "Granted: %s\n", strings.Join(result.Changes.Added, ", "))
			}
			return nil
		}

		if app.Maintenance == nil {
			result, err := app.Sweeper.SweepAll(cmd.Context(), now, sweepBatch)
			fmt.Fprintf(out, "Swept %d user(s), expired %d subscription(s), %d failed\n",
				result.Users, result.Expired, result.Failed)
			return err
		}

		result, err := app.Maintenance.Run(cmd.Context(), now)
		fmt.Fprintf(out, "Swept %d user(s), expired %d subscription(s), %d failed\n",
			result.Sweep.Users, result.Sweep.Expired, result.Sweep.Failed)
		fmt.Fprintf(out, "Purged %d ledger entries, %d outbox messages\n", result.LedgerPurged, result.OutboxDeleted)
		return err
	},
}

func init() {
	rolesCmd.Flags().StringVar(&rolesUser, "user", "", "user ID")
	sweepCmd.Flags().StringVar(&sweepUser, "user", "", "only sweep this user")
	sweepCmd.Flags().StringVar(&sweepAt, "at", "", "evaluate expiry at this RFC 3339 time instead of now")
	sweepCmd.Flags().IntVar(&sweepBatch, "batch", 100, "users per batch")
}
