package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/billing/application/subscribers"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
)

var (
	paymentEventPath   string
	paymentRoutingKey  string
	paymentUser        string
	paymentPackage     string
	paymentAmount      string
	paymentTransaction string
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Apply a payment event locally",
	Long: `Deliver a payment event through the same retry and dead-letter path
the broker consumer uses, without RabbitMQ.

Either pass a JSON payload with --event or build a service package payment
from flags.

Examples:
  keystone billing payment --event ./payment.json
  keystone billing payment --user <user-id> --package <package-id> --amount 49.99`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.PaymentBus == nil {
			return errNoBilling
		}

		routingKey := paymentRoutingKey
		var body []byte
		var err error
		if paymentEventPath != "" {
			body, err = os.ReadFile(filepath.Clean(paymentEventPath))
			if err != nil {
				return err
			}
			if !json.Valid(body) {
				return errors.New("invalid payment event: not JSON")
			}
		} else {
			body, err = paymentFromFlags()
			if err != nil {
				return err
			}
			routingKey = subscribers.RoutingKeyServicePackagePayment
		}

		before := len(app.PaymentBus.DeadLetters())
		disposition, err := app.PaymentBus.Deliver(cmd.Context(), routingKey, body)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if disposition == eventbus.DispositionDeadLetter {
			letters := app.PaymentBus.DeadLetters()
			if len(letters) > before {
				failed := letters[len(letters)-1]
				fmt.Fprintf(out, "Payment dead-lettered after %d attempt(s): %v\n", failed.Attempts, failed.Err)
				return nil
			}
			fmt.Fprintln(out, "Payment dead-lettered")
			return nil
		}
		fmt.Fprintln(out, "Payment applied")
		return nil
	},
}

func paymentFromFlags() ([]byte, error) {
	userID, err := parseUser(paymentUser)
	if err != nil {
		return nil, err
	}
	packageID, err := uuid.Parse(paymentPackage)
	if err != nil {
		return nil, fmt.Errorf("invalid package id: %w", err)
	}
	amount, err := decimal.NewFromString(paymentAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", paymentAmount)
	}
	txID := paymentTransaction
	if txID == "" {
		txID = uuid.NewString()
	}
	return json.Marshal(subscribers.ServicePackagePaymentPayload{
		TransactionID:    txID,
		UserID:           userID,
		Amount:           amount,
		ServicePackageID: &packageID,
	})
}

func init() {
	paymentCmd.Flags().StringVar(&paymentEventPath, "event", "", "path to payment event JSON")
	paymentCmd.Flags().StringVar(&paymentRoutingKey, "routing-key", subscribers.RoutingKeyPaymentSucceeded, "routing key for --event payloads")
	paymentCmd.Flags().StringVar(&paymentUser, "user", "", "paying user ID")
	paymentCmd.Flags().StringVar(&paymentPackage, "package", "", "purchased package ID")
	paymentCmd.Flags().StringVar(&paymentAmount, "amount", "", "amount paid")
	paymentCmd.Flags().StringVar(&paymentTransaction, "transaction", "", "transaction ID (default random)")
}
