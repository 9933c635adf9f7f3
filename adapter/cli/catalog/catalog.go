package catalog

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	"github.com/felixgeelhaar/keystone/internal/catalog/application/queries"
)

// Cmd is the package catalog command group.
var Cmd = &cobra.Command{
	Use:     "package",
	Aliases: []string{"packages", "pkg"},
	Short:   "Manage service packages",
	Long: `Create, update and inspect the service packages users can buy.

Each package grants one role for a fixed number of days.`,
}

var errNoCatalog = fmt.Errorf("catalog %w", cli.ErrNoApp)

func parseID(raw, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}

func printPackages(w io.Writer, pkgs []queries.PackageDTO) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tDAYS\tPRICE\tSTATUS")
	for _, p := range pkgs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, p.AssociatedRole, p.DurationDays, p.Price.StringFixed(2), p.Status)
	}
	_ = tw.Flush()
}

func init() {
	Cmd.AddCommand(createCmd)
	Cmd.AddCommand(updateCmd)
	Cmd.AddCommand(deleteCmd)
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(promotionCmd)
}
