// File: cmd/cache.go
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cythink/internal/companion"
	"github.com/xkilldash9x/cythink/internal/config"
	"github.com/xkilldash9x/cythink/internal/observability"
	"github.com/xkilldash9x/cythink/internal/store"
)

// newCacheCmd creates the `cache` command group.
func newCacheCmd(caches cacheProvider) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear cached translations",
	}
	cacheCmd.AddCommand(newCacheListCmd(caches), newCachePurgeCmd(caches))
	return cacheCmd
}

func newCacheListCmd(caches cacheProvider) *cobra.Command {
	var specID string
	var asJSON bool

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the durable cache entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runCacheList(cmd.Context(), cmd.OutOrStdout(), observability.GetLogger(), cfg.Cache, caches, specID, asJSON)
		},
	}
	listCmd.Flags().StringVar(&specID, "spec", "", "only list entries of this spec")
	listCmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return listCmd
}

func newCachePurgeCmd(caches cacheProvider) *cobra.Command {
	var specID, testID, companionURL string

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete the cached entries of one test",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runCachePurge(cmd.Context(), cmd.OutOrStdout(), observability.GetLogger(), cfg.Cache, caches, specID, testID, companionURL)
		},
	}
	purgeCmd.Flags().StringVar(&specID, "spec", "", "spec identifier (required)")
	purgeCmd.Flags().StringVar(&testID, "test", "", "test identifier")
	purgeCmd.Flags().StringVar(&companionURL, "companion", "", "purge through a running companion endpoint")
	_ = purgeCmd.MarkFlagRequired("spec")
	return purgeCmd
}

// cacheListing is the JSON shape of one listed entry.
type cacheListing struct {
	Fingerprint    string    `json:"fingerprint"`
	SpecIdentifier string    `json:"specIdentifier"`
	TestIdentifier string    `json:"testIdentifier"`
	Prompt         string    `json:"prompt"`
	Action         string    `json:"action"`
	Client         string    `json:"client"`
	Model          string    `json:"model"`
	TokenUsage     int       `json:"tokenUsage"`
	CreatedAt      time.Time `json:"createdAt"`
}

func runCacheList(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.CacheConfig, caches cacheProvider, specID string, asJSON bool) error {
	cache, cleanup, err := caches.Open(ctx, cfg, logger, observability.NopMetrics())
	if err != nil {
		return err
	}
	defer cleanup()

	var listings []cacheListing
	for _, r := range cache.Records() {
		if specID != "" && r.Entry.SpecIdentifier != specID {
			continue
		}
		listings = append(listings, toListing(r))
	}

	if asJSON {
		if listings == nil {
			listings = []cacheListing{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listings)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINGERPRINT\tSPEC\tTEST\tSTEP\tACTION\tTOKENS")
	for _, l := range listings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n", short(l.Fingerprint), l.SpecIdentifier, l.TestIdentifier, l.Prompt, l.Action, l.TokenUsage)
	}
	return tw.Flush()
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func toListing(r store.Record) cacheListing {
	return cacheListing{
		Fingerprint:    r.Fingerprint,
		SpecIdentifier: r.Entry.SpecIdentifier,
		TestIdentifier: r.Entry.TestIdentifier,
		Prompt:         r.Entry.Prompt,
		Action:         r.Entry.Action,
		Client:         string(r.Entry.Client),
		Model:          r.Entry.Model,
		TokenUsage:     r.Entry.TokenUsage,
		CreatedAt:      r.Entry.CreatedAt,
	}
}

func runCachePurge(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.CacheConfig, caches cacheProvider, specID, testID, companionURL string) error {
	if specID == "" {
		return errors.New("--spec is required")
	}

	var count int
	if companionURL != "" {
		client := companion.NewClient(companionURL, nil, logger)
		if err := client.WaitReady(ctx, companionWait); err != nil {
			return fmt.Errorf("companion endpoint is not reachable: %w", err)
		}
		n, err := client.ClearCachedThoughts(ctx, specID, testID)
		if err != nil {
			return err
		}
		count = n
	} else {
		cache, cleanup, err := caches.Open(ctx, cfg, logger, observability.NopMetrics())
		if err != nil {
			return err
		}
		defer cleanup()
		n, err := cache.Purge(ctx, specID, testID)
		if err != nil {
			return fmt.Errorf("failed to save cache: %w", err)
		}
		count = n
	}

	_, err := fmt.Fprintf(out, "removed %d cached entries\n", count)
	return err
}
