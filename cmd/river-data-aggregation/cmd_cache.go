package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/i474232898/river-data-aggregation/internal/common"
	"github.com/i474232898/river-data-aggregation/internal/config"
	"github.com/i474232898/river-data-aggregation/internal/httpcache"
	"github.com/i474232898/river-data-aggregation/internal/hydro/providers"
)

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove every cached upstream response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			n, err := httpcache.Clear(cfg.CacheDir)
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			successColor.Fprintf(cmd.OutOrStdout(), "✓ removed %d cached responses from %s\n", n, cfg.CacheDir)
			return nil
		},
	}
}

func parametersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "bom-parameters [continuous|discrete]",
		Short:     "List the BOM parameter types with daily series, or those recorded at --station",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"continuous", "discrete"},
		RunE:      runParameters,
	}
	cmd.Flags().StringSlice("station", nil, "Station numbers to list recorded parameters for")
	cmd.Flags().Bool("no-cache", false, "Bypass the on-disk response cache")
	cmd.Flags().String("base-url", "", "Override the upstream base URL")
	cmd.Flags().MarkHidden("base-url")
	return cmd
}

func runParameters(cmd *cobra.Command, args []string) error {
	stations, _ := cmd.Flags().GetStringSlice("station")
	if len(stations) == 0 {
		category := ""
		if len(args) == 1 {
			category = args[0]
		}
		params, err := providers.BOMParameters(category)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(params, "\n"))
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("a category cannot be combined with --station")
	}

	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	noCache, _ := cmd.Flags().GetBool("no-cache")
	baseURL, _ := cmd.Flags().GetString("base-url")
	deps, err := rt.deps(noCache)
	if err != nil {
		return err
	}

	list, err := providers.NewBOMProvider(deps, baseURL).StationParameters(cmd.Context(), common.SplitLists(stations))
	if err != nil {
		return err
	}
	return list.WriteCSV(cmd.OutOrStdout())
}
