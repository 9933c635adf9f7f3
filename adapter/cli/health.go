package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/pkg/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the database and other dependencies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		app := GetApp()
		if app == nil || app.Health == nil {
			return errors.New("health check requires database connection")
		}

		report := app.Health.Check(cmd.Context())
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "COMPONENT\tSTATUS\tLATENCY\tERROR\n")
		for _, name := range app.Health.Components() {
			c := report.Components[name]
			fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", name, c.Status, c.LatencyMS, c.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "overall: %s (%s)\n", report.Status, app.DB.Driver())

		if report.Status == observability.HealthStatusUnhealthy {
			return errors.New("unhealthy")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
