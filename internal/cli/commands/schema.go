package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/mirkwood-lang/mirkwood/internal/cli/ui"
)

// NewSchemaCommand creates the schema command
func NewSchemaCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the generated GraphQL schema",
	}
	cmd.AddCommand(newSchemaPrintCommand(g))
	cmd.AddCommand(newSchemaCheckCommand(g))
	return cmd
}

func newSchemaPrintCommand(g *globals) *cobra.Command {
	var internal bool

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the schema as SDL",
		Long: `Print the compiled schema in GraphQL SDL.

The public schema is printed unless --internal is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			fmt.Fprint(cmd.OutOrStdout(), a.Result.Schema(internal).Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&internal, "internal", false, "Print the internal schema")
	return cmd
}

func newSchemaCheckCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the models and both generated schemas",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			for _, internal := range []bool{false, true} {
				name := "public"
				if internal {
					name = "internal"
				}
				src := &ast.Source{Name: name + ".graphql", Input: a.Result.Schema(internal).Render()}
				if _, err := gqlparser.LoadSchema(src); err != nil {
					return fmt.Errorf("%s schema: %w", name, err)
				}
			}

			ui.Success(cmd.OutOrStdout(), "%d models compiled, %d types", a.Models.Count(), len(a.Result.Meta.Names()))
			return nil
		},
	}
}
