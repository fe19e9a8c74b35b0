// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tandem/api/schemas"
	"github.com/xkilldash9x/tandem/internal/config"
	"github.com/xkilldash9x/tandem/internal/engine"
	"github.com/xkilldash9x/tandem/internal/llmclient"
	"github.com/xkilldash9x/tandem/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// components holds everything a command needs to talk to the coordinator.
type components struct {
	Coordinator *engine.Coordinator
	Metrics     *observability.Metrics

	client  schemas.LLMClient
	tracing *observability.Tracing
	logger  *zap.Logger
}

// newClient is swapped in tests.
var newClient = llmclient.NewClient

// initializeComponents wires tracing, the model client and the coordinator.
// Without an API key the model-backed verification tiers are unavailable
// but every deterministic operation still works.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c := &components{
		Metrics: observability.NewMetrics(cfg.Observability.MetricsNamespace),
		logger:  logger,
	}

	tracing, err := observability.InitTracing(ctx, cfg.Observability, cfg.Logger.ServiceName, Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.tracing = tracing

	if cfg.LLM.APIKey != "" {
		client, err := newClient(cfg.LLM, logger)
		if err != nil {
			c.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		c.client = client
	} else {
		logger.Warn("No LLM API key configured; model-backed verification is disabled.")
	}

	coordinator, err := engine.NewCoordinator(cfg, c.client, c.Metrics, logger)
	if err != nil {
		c.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	c.Coordinator = coordinator
	return c, nil
}

// Shutdown releases the model client and flushes traces.
func (c *components) Shutdown(ctx context.Context) {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.Warn("Failed to close LLM client", zap.Error(err))
		}
	}
	if err := c.tracing.Shutdown(context.WithoutCancel(ctx)); err != nil {
		c.logger.Warn("Failed to shut down tracing", zap.Error(err))
	}
}

// setupCommand loads the config from the context and builds components.
func setupCommand(cmd *cobra.Command) (*config.Config, *components, error) {
	cfg, err := getConfigFromContext(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	comps, err := initializeComponents(cmd.Context(), cfg, observability.GetLogger())
	if err != nil {
		return nil, nil, err
	}
	return cfg, comps, nil
}

// openInput opens path for reading; "-" and "" mean the command's stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

// readInput decodes one JSON document from path into v.
func readInput(cmd *cobra.Command, path string, v interface{}) error {
	r, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}
	return nil
}

// writeOutput prints v as indented JSON on the command's stdout.
func writeOutput(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
