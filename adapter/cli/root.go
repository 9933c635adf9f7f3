// Package cli is the keystone operator command line. Subcommand packages
// register themselves on the root command; main wires the container in with
// SetApp before Execute.
package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/pkg/observability"
)

var (
	verbose bool
	logger  = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "keystone",
	Short: "Keystone - subscription and entitlement engine",
	Long: `Keystone turns confirmed payments into time-boxed subscriptions
and keeps each user's roles in line with the packages they hold.

Use it to manage the package catalog, inspect subscriptions, replay
payment events and run the expiry sweep by hand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Every invocation is one correlation chain; events written by the
	// command carry its id.
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if observability.CorrelationIDFromContext(cmd.Context()) == "" {
			cmd.SetContext(observability.WithCorrelationID(cmd.Context(), ""))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log each command at info level")
}

// Execute runs the command named by os.Args and logs how it ended.
func Execute(ctx context.Context) error {
	ctx = observability.WithCorrelationID(ctx, "")
	started := time.Now()

	cmd, err := rootCmd.ExecuteContextC(ctx)

	path := rootCmd.Name()
	if cmd != nil {
		path = cmd.CommandPath()
	}
	attrs := []any{"command", path, "duration_ms", time.Since(started).Milliseconds()}
	if err != nil {
		logger.ErrorContext(ctx, "command failed", append(attrs, "error", err)...)
		return err
	}
	level := slog.LevelDebug
	if verbose {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "command finished", attrs...)
	return nil
}

func Root() *cobra.Command { return rootCmd }

// AddCommand attaches a subcommand tree to the root.
func AddCommand(cmd *cobra.Command) { rootCmd.AddCommand(cmd) }

// SetLogger replaces the logger used for command tracing. nil keeps the
// current one.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}
