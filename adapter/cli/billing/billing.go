package billing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
)

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Manage subscriptions and entitlements",
	Long: `Inspect and change subscriptions, reconcile roles, run the expiry
sweep and replay payment events.`,
}

var errNoBilling = fmt.Errorf("billing %w", cli.ErrNoApp)

func parseUser(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, errors.New("user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id: %w", err)
	}
	return id, nil
}

func init() {
	Cmd.AddCommand(subscribeCmd)
	Cmd.AddCommand(renewCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(subscriptionsCmd)
	Cmd.AddCommand(rolesCmd)
	Cmd.AddCommand(sweepCmd)
	Cmd.AddCommand(paymentCmd)
}
