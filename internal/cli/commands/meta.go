package commands

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mirkwood-lang/mirkwood/internal/cli/ui"
)

// NewMetaCommand creates the meta command
func NewMetaCommand(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "meta <Type>",
		Short: "Show the metadata recorded for a compiled type",
		Long: `Show the fields, relations and display hints of a compiled type,
as served by the _meta query.

Examples:
  mirkwood meta OrderType
  mirkwood meta OrderType --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			entry, ok := a.Result.Meta.Get(args[0])
			if !ok {
				return ui.NotFoundError("type", args[0], a.Result.Meta.Names())
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(entry, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			pairs := [][2]string{{"name", entry.Name}, {"kind", entry.Kind}}
			if entry.Model != "" {
				pairs = append(pairs, [2]string{"model", entry.Model})
			}
			if entry.Description != "" {
				pairs = append(pairs, [2]string{"description", entry.Description})
			}
			ui.KeyValue(out, pairs...)
			fmt.Fprintln(out)

			table := ui.NewTable(out, "FIELD", "TYPE", "REQUIRED", "RESOLVED", "RELATION")
			for _, f := range entry.Fields {
				table.AddRow(f.Name, f.Type, strconv.FormatBool(f.Required), strconv.FormatBool(f.Resolved), f.Relation)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the entry as JSON")
	return cmd
}
