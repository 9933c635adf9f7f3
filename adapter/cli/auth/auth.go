package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	identityApp "github.com/felixgeelhaar/keystone/internal/identity/application"
)

// Cmd is the account command group.
var Cmd = &cobra.Command{
	Use:   "auth",
	Short: "Register, verify and sign in users",
	Long: `Account commands. Verification and reset tokens are delivered through
the configured notifier; in local mode they are written to the log.`,
}

var errNoAuth = fmt.Errorf("auth %w", cli.ErrNoApp)

var (
	regFirstName string
	regLastName  string
	regEmail     string
	regPhone     string
	regBirthDate string
	regGender    string
	regPassword  string

	verifyToken string

	loginEmail    string
	loginPassword string

	resetEmail    string
	resetToken    string
	resetPassword string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Start a registration",
	Long: `Validate the details and send a verification token. The account is
created when the token is verified.

Examples:
  keystone auth register --first Ada --last Lovelace --email ada@example.com --password s3cretpass`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AuthService == nil {
			return errNoAuth
		}

		if err := app.AuthService.Register(cmd.Context(), identityApp.RegisterCommand{
			FirstName: regFirstName,
			LastName:  regLastName,
			Email:     regEmail,
			Phone:     regPhone,
			BirthDate: regBirthDate,
			Gender:    regGender,
			Password:  regPassword,
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Verification sent to %s\n", regEmail)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Complete a registration with its verification token",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AuthService == nil {
			return errNoAuth
		}
		if verifyToken == "" {
			return errors.New("token is required")
		}

		user, err := app.AuthService.Verify(cmd.Context(), verifyToken)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Account created: %s (ID: %s)\n", user.Email, user.ID)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and print an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AuthService == nil {
			return errNoAuth
		}

		result, err := app.AuthService.Login(cmd.Context(), identityApp.LoginCommand{
			Email:    loginEmail,
			Password: loginPassword,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User:    %s\n", result.UserID)
		fmt.Fprintf(out, "Roles:   %s\n", strings.Join(result.Roles, ", "))
		fmt.Fprintf(out, "Expires: %s\n", result.ExpiresAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Token:   %s\n", result.AccessToken)
		return nil
	},
}

var forgotPasswordCmd = &cobra.Command{
	Use:   "forgot-password",
	Short: "Send a password reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AuthService == nil {
			return errNoAuth
		}

		if err := app.AuthService.RequestPasswordReset(cmd.Context(), resetEmail); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "If the account exists, a reset token has been sent.")
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "reset-password",
	Short: "Set a new password with a reset token",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.AuthService == nil {
			return errNoAuth
		}

		if err := app.AuthService.ResetPassword(cmd.Context(), identityApp.ResetPasswordCommand{
			Token:       resetToken,
			NewPassword: resetPassword,
		}); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Password updated.")
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&regFirstName, "first", "", "first name")
	registerCmd.Flags().StringVar(&regLastName, "last", "", "last name")
	registerCmd.Flags().StringVar(&regEmail, "email", "", "email address")
	registerCmd.Flags().StringVar(&regPhone, "phone", "", "phone number")
	registerCmd.Flags().StringVar(&regBirthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	registerCmd.Flags().StringVar(&regGender, "gender", "", "male, female or other")
	registerCmd.Flags().StringVar(&regPassword, "password", "", "password (8-72 characters)")

	verifyCmd.Flags().StringVar(&verifyToken, "token", "", "verification token")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "email address")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "password")

	forgotPasswordCmd.Flags().StringVar(&resetEmail, "email", "", "email address")

	resetPasswordCmd.Flags().StringVar(&resetToken, "token", "", "reset token")
	resetPasswordCmd.Flags().StringVar(&resetPassword, "password", "", "new password")

	Cmd.AddCommand(registerCmd)
	Cmd.AddCommand(verifyCmd)
	Cmd.AddCommand(loginCmd)
	Cmd.AddCommand(forgotPasswordCmd)
	Cmd.AddCommand(resetPasswordCmd)
}
