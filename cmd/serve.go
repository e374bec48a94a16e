// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/internal/companion"
	"github.com/xkilldash9x/cythink/internal/config"
	"github.com/xkilldash9x/cythink/internal/llmclient"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/rewrite"
	"github.com/xkilldash9x/cythink/internal/translate"
)

// newServeCmd creates the `serve` command, which runs the companion endpoint.
func newServeCmd(v *viper.Viper, caches cacheProvider, newClient clientFactory) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the companion endpoint used by test runners",
		Long: `Serves the companion HTTP endpoint. Runners post translation tasks, confirm
executed actions, clear cached entries and save generated code back into spec files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), observability.GetLogger(), cfg, caches, newClient)
		},
	}

	serveCmd.Flags().String("host", "", "interface to listen on (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "port to listen on (default 4321)")
	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	return serveCmd
}

// runServe serves until ctx is canceled.
func runServe(ctx context.Context, logger *zap.Logger, cfg *config.Config, caches cacheProvider, newClient clientFactory) error {
	server, cleanup, err := buildCompanion(ctx, logger, cfg, caches, newClient)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("companion server failed: %w", err)
	}
	return nil
}

// buildCompanion wires the cache, backend, translation service and rewriter behind the
// companion server.
func buildCompanion(ctx context.Context, logger *zap.Logger, cfg *config.Config, caches cacheProvider, newClient clientFactory) (*companion.Server, func(), error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	cache, cleanup, err := caches.Open(ctx, cfg.Cache, logger, metrics)
	if err != nil {
		return nil, nil, err
	}
	client, err := newClient(ctx, cfg.Translator, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize translation backend: %w", err)
	}

	instructions, _ := llmclient.ReadAgentInstructions(cfg.Project.Root, logger)
	service := translate.NewService(client, cache, translateSettings(cfg, instructions), logger, metrics)

	handlers := companion.NewHandlers(logger, cache, service, rewrite.New(cfg.Project.Root, logger))
	logger.Info("Companion ready.",
		zap.String("client", string(service.Identity().Client)),
		zap.String("model", service.Identity().Model),
		zap.Int("cached_entries", cache.Len()),
	)
	return companion.NewServer(cfg.Server, handlers, registry, logger), cleanup, nil
}

func translateSettings(cfg *config.Config, instructions string) translate.Settings {
	return translate.Settings{
		Model:             cfg.Translator.Model,
		Options:           cfg.Translator.Options,
		AgentInstructions: instructions,
		MaxContextLength:  cfg.Context.MaxLength,
	}
}
