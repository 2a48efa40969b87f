package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mirkwood-lang/mirkwood/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(g *globals) *cobra.Command {
	var (
		host    string
		port    int
		migrate bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL API",
		Long: `Compile the models and serve the GraphQL endpoint.

In production the endpoint exposes the public schema only; otherwise
internal operations are served as well.

Examples:
  mirkwood serve
  mirkwood serve --port 8080
  mirkwood serve --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.app(false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Logger.Sync() }()

			if cmd.Flags().Changed("host") {
				a.Config.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				a.Config.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if migrate {
				results, err := a.Migrate(ctx)
				if err != nil {
					_ = a.Close(context.Background())
					return err
				}
				for _, r := range results {
					a.Logger.Info("migrated",
						zap.String("model", r.Model),
						zap.String("collection", r.Collection),
						zap.Bool("skipped", r.Skipped))
				}
			}

			cfg := server.DefaultConfig(a.Config.Addr(), a.Handler())
			cfg.Logger = a.Logger
			srv, err := server.New(cfg)
			if err != nil {
				_ = a.Close(context.Background())
				return err
			}

			a.Logger.Info("serving",
				zap.String("addr", a.Config.Addr()),
				zap.String("path", a.Config.Server.Path),
				zap.Bool("production", a.Config.Production),
				zap.Int("models", a.Models.Count()))

			return server.Run(ctx, srv, a.Close)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host to listen on (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create missing tables before serving")

	return cmd
}
