// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/server"
	"github.com/xkilldash9x/formpilot/internal/session"
)

// newServeCmd creates and configures the `serve` command.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the form automation HTTP service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr")); err != nil {
				return err
			}
			if err := viper.BindPFlag("server.static_dir", cmd.Flags().Lookup("static-dir")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-read the config now that PreRunE has bound the flag overrides.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			logger.Info("Starting formpilot service",
				zap.String("addr", cfg.Server.Addr),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.Int64("max_concurrent_runs", cfg.Server.MaxConcurrentRuns),
				zap.String("provider", string(cfg.Model.Provider)),
			)

			defer observability.Sync()

			manager, err := browser.NewManager(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to launch the browser allocator: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := manager.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Error during browser manager shutdown", zap.Error(err))
				}
			}()

			store := session.NewStore(cfg.Session.Capacity, cfg.Session.TTL)
			srv := server.New(cfg, logger, store, server.BrowserProvider(manager))

			if err := srv.Run(ctx); err != nil {
				logger.Error("Service terminated", zap.Error(err))
				return err
			}

			logger.Info("Service stopped.")
			return nil
		},
	}

	serveCmd.Flags().String("addr", "", "Listen address for the HTTP service, e.g. :8080. (Overrides config/env)")
	serveCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	serveCmd.Flags().String("static-dir", "", "Directory with the built web UI to serve at /. (Overrides config/env)")

	return serveCmd
}
