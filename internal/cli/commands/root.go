package commands

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mirkwood-lang/mirkwood/internal/app"
	"github.com/mirkwood-lang/mirkwood/internal/config"
	"github.com/mirkwood-lang/mirkwood/internal/logging"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// globals holds the persistent flags shared by every subcommand
type globals struct {
	configPath string
	noColor    bool
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "mirkwood",
		Short: "Schema-driven GraphQL backends",
		Long: color.CyanString(`Mirkwood - schema-driven GraphQL backends

Declare models in YAML and mirkwood compiles them into a GraphQL API:
database and session utilities for every model, relations resolved
across storage backends, and role based access control on every field.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Config file (default mirkwood.yml)")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewServeCommand(g))
	rootCmd.AddCommand(NewSchemaCommand(g))
	rootCmd.AddCommand(NewMetaCommand(g))
	rootCmd.AddCommand(NewMigrateCommand(g))
	rootCmd.AddCommand(NewTokenCommand(g))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the mirkwood version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			out := cmd.OutOrStdout()

			titleColor.Fprint(out, "Mirkwood version: ")
			fmt.Fprintln(out, Version)
			titleColor.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, GitCommit)
			titleColor.Fprint(out, "Build date: ")
			fmt.Fprintln(out, BuildDate)
			titleColor.Fprint(out, "Go version: ")
			fmt.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}

func (g *globals) config() (*config.Config, error) {
	return config.Load(g.configPath)
}

// app loads the configuration and compiles the models. quiet drops
// everything below warnings so command output stays readable.
func (g *globals) app(quiet bool) (*app.App, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if quiet {
		level = "warn"
	}
	logger := logging.New(cfg.Production, level)

	a, err := app.New(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}
