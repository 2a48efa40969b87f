package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mirkwood-lang/mirkwood/internal/auth"
)

// NewTokenCommand creates the token command
func NewTokenCommand(g *globals) *cobra.Command {
	var (
		role string
		user string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token",
		Long: `Issue a bearer token signed with auth.secret.

Examples:
  mirkwood token --role admin
  mirkwood token --role member --user u42 --ttl 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := auth.NewIssuer(cfg.Auth.Secret, ttl).Token(auth.Identity{Role: role, User: user})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "Role carried by the token")
	cmd.Flags().StringVar(&user, "user", "", "User carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("role")

	return cmd
}
