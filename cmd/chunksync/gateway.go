package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/gateway"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve a sqlite backed chunk store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			server, err := gateway.New(cmd.Context(), &cfg.Gateway)
			if err != nil {
				return err
			}
			defer slog.Info("Bye!")
			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (default "+gateway.DefaultAddr+")")
	cmd.Flags().String("db", "", "chunk database path")
	cmd.Flags().String("token", "", "static bearer token required on API calls")
	cmd.Flags().String("jwt-secret", "", "require gateway JWTs signed with this secret")
	cmd.AddCommand(newGatewayTokenCmd())
	return cmd
}

func newGatewayTokenCmd() *cobra.Command {
	var (
		subject string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a JWT accepted by the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Gateway.JWTSecret == "" {
				return fmt.Errorf("gateway jwt secret missing, set --jwt-secret or %s_GATEWAY_JWT_SECRET", config.EnvPrefix)
			}

			token, err := gateway.IssueToken(subject, cfg.Gateway.JWTSecret, expiry)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "deploy", "token subject")
	cmd.Flags().DurationVar(&expiry, "expiry", 30*24*time.Hour, "token lifetime, 0 for none")
	cmd.Flags().String("jwt-secret", "", "signing secret")
	return cmd
}
