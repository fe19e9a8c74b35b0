// File: cmd/serve.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/internal/observability"
	"github.com/xkilldash9x/tandem/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the chain and verification API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, comps, err := setupCommand(cmd)
			if err != nil {
				return err
			}
			defer comps.Shutdown(ctx)
			logger := observability.GetLogger()

			srv, err := server.New(cfg.Server, comps.Coordinator, comps.Metrics, logger)
			if err != nil {
				return err
			}
			logger.Info("Starting tandem server", zap.String("version", Version), zap.String("address", cfg.Server.Address))
			// Run returns nil once the signal-aware context ends and shutdown completes.
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("address", "", "listen address (overrides server.address)")
	bindToConfig(cmd, "address", "server.address")
	return cmd
}
