// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/agent"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/extract"
	"github.com/xkilldash9x/formpilot/internal/model"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/server"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// newRunCmd creates the `run` command: one form-fill task driven from the
// terminal, with no HTTP service in between.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Fill one form from the terminal",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("model.provider", cmd.Flags().Lookup("provider")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			targetURL, _ := cmd.Flags().GetString("url")
			if !strings.HasPrefix(targetURL, "http://") && !strings.HasPrefix(targetURL, "https://") {
				targetURL = "https://" + targetURL
			}

			rawFields, _ := cmd.Flags().GetString("fields")
			var fields map[string]string
			if err := json.Unmarshal([]byte(rawFields), &fields); err != nil {
				return fmt.Errorf("--fields must be a JSON object of field names to values: %w", err)
			}
			if len(fields) == 0 {
				return fmt.Errorf("--fields must name at least one field")
			}

			logger.Info("Starting form automation",
				zap.String("url", targetURL),
				zap.Int("fields", len(fields)),
				zap.String("provider", string(cfg.Model.Provider)),
			)

			defer observability.Sync()

			decider, err := model.New(ctx, cfg.Model, logger)
			if err != nil {
				return fmt.Errorf("could not build the %s client: %w", cfg.Model.Provider, err)
			}

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

			sink := agent.SinkFunc(func(event schemas.Event) {
				renderEvent(logger, event)
			})
			runner := agent.NewRunner(decider, extract.New(),
				agent.SystemPrompt(cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight),
				cfg.Agent, sink, logger)
			single := agent.NewSingle(server.BrowserProvider(manager), runner, cfg.Agent, sink, logger)

			outcome, err := single.Run(ctx, targetURL, fields)
			if err != nil {
				return err
			}
			if !outcome.Success {
				return fmt.Errorf("run stopped after %d iterations without completing the form", outcome.Iterations)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nRun complete. Reference: %s\n", outcome.Reference)
			return nil
		},
	}

	runCmd.Flags().String("url", "", "URL of the form page (required)")
	runCmd.Flags().String("fields", "", `Field values as a JSON object, e.g. '{"name":"Ada"}' (required)`)
	runCmd.Flags().String("provider", "", "Decision model provider: anthropic, gemini or openai. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless. (Overrides config/env)")
	_ = runCmd.MarkFlagRequired("url")
	_ = runCmd.MarkFlagRequired("fields")

	return runCmd
}

// renderEvent maps stream events onto log lines so a terminal run tells the
// same story as the service's NDJSON stream, minus the image payloads.
func renderEvent(logger *zap.Logger, event schemas.Event) {
	switch event.Type {
	case schemas.EventStatus:
		logger.Info(stringField(event, "message"))
	case schemas.EventClaudeText:
		logger.Info("Model commentary", zap.String("text", stringField(event, "text")))
	case schemas.EventAction:
		kind, _ := event.Data["kind"].(schemas.ActionKind)
		logger.Info("Browser action", zap.String("kind", string(kind)))
	case schemas.EventIteration:
		logger.Debug("Iteration", zap.Any("current", event.Data["current"]), zap.Any("max", event.Data["max"]))
	case schemas.EventScreenshot:
		logger.Debug("Screenshot captured", zap.Int("encoded_bytes", len(stringField(event, "image"))))
	case schemas.EventError:
		logger.Warn("Run error", zap.String("message", stringField(event, "message")))
	case schemas.EventDone:
		// The run summary is printed by the command itself.
	}
}

func stringField(event schemas.Event, key string) string {
	s, _ := event.Data[key].(string)
	return s
}
