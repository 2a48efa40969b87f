package commands

import (
	"github.com/spf13/cobra"

	"github.com/mirkwood-lang/mirkwood/internal/cli/ui"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the tables of relational models",
		Long: `Create the table of every model stored on a relational connection.

Existing tables are left as they are. Models on document stores need
no migration and are reported as skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			results, err := a.Migrate(cmd.Context())
			out := cmd.OutOrStdout()

			table := ui.NewTable(out, "MODEL", "COLLECTION", "CONNECTION", "STATUS")
			for _, r := range results {
				status := "ready"
				if r.Skipped {
					status = "skipped"
				}
				table.AddRow(r.Model, r.Collection, r.Connection, status)
			}
			if len(results) > 0 {
				table.Render()
			}
			if err != nil {
				return err
			}

			ui.Success(out, "%d models migrated", len(results))
			return nil
		},
	}
}
