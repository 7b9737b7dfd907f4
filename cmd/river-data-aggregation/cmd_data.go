package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/river-data-aggregation/internal/common"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/hydro/providers"
	"github.com/i474232898/river-data-aggregation/internal/store"
)

func dataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-data <source>",
		Short: "Download time series for one or more sites, one CSV per site",
		Args:  cobra.ExactArgs(1),
		RunE:  runData,
	}
	cmd.Flags().StringSlice("site", nil, "Site identifiers (repeatable or comma separated)")
	cmd.Flags().String("site-file", "", "File with one site identifier per line")
	cmd.Flags().Bool("sites-from-metadata", false, "Also fetch every site listed in --metadata-file")
	cmd.Flags().String("metadata-file", "", "Metadata CSV written by get-metadata")
	cmd.Flags().StringSlice("variable", []string{hydro.VariableDischarge}, "Variables to fetch")
	cmd.Flags().String("frequency", hydro.FrequencyDaily, "daily, monthly or instantaneous")
	cmd.Flags().String("statistic", "", "mean, maximum or minimum")
	cmd.Flags().String("start", "", "Start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().String("end", "", "End date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringP("output-dir", "o", ".", "Directory the per-site CSV files are written to")
	cmd.Flags().Bool("overwrite", false, "Replace existing site files")
	cmd.Flags().Bool("append", false, "Append to existing site files")
	cmd.Flags().Int("workers", 1, "Sites fetched concurrently")
	cmd.Flags().Bool("stop-on-error", false, "Stop once a site fails after exhausting its retries")
	cmd.Flags().Bool("no-cache", false, "Bypass the on-disk response cache")
	cmd.Flags().String("timezone", "", "IANA zone for every series instead of the station's own (bom)")
	cmd.Flags().String("aggregation", providers.DefaultBOMAggregation, "Daily aggregation window, 24HR or 09HR (bom)")
	cmd.Flags().String("base-url", "", "Override the upstream base URL")
	cmd.Flags().MarkHidden("base-url")
	return cmd
}

func runData(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()

	sites, _ := f.GetStringSlice("site")
	sites = common.SplitLists(sites)
	if path, _ := f.GetString("site-file"); path != "" {
		fromFile, err := common.ReadLinesFile(path)
		if err != nil {
			return fmt.Errorf("read site file: %w", err)
		}
		sites = append(sites, fromFile...)
	}

	fromMetadata, _ := f.GetBool("sites-from-metadata")
	metadataFile, _ := f.GetString("metadata-file")
	variables, _ := f.GetStringSlice("variable")
	frequency, _ := f.GetString("frequency")
	statistic, _ := f.GetString("statistic")
	outputDir, _ := f.GetString("output-dir")
	overwrite, _ := f.GetBool("overwrite")
	appendMode, _ := f.GetBool("append")
	workers, _ := f.GetInt("workers")
	stopOnError, _ := f.GetBool("stop-on-error")
	noCache, _ := f.GetBool("no-cache")
	timezone, _ := f.GetString("timezone")
	aggregation, _ := f.GetString("aggregation")
	baseURL, _ := f.GetString("base-url")

	startStr, _ := f.GetString("start")
	start, err := parseDate("start", startStr)
	if err != nil {
		return err
	}
	endStr, _ := f.GetString("end")
	end, err := parseDate("end", endStr)
	if err != nil {
		return err
	}

	mode := hydro.WriteReject
	switch {
	case overwrite && appendMode:
		return errors.New("--overwrite and --append are mutually exclusive")
	case overwrite:
		mode = hydro.WriteOverwrite
	case appendMode:
		mode = hydro.WriteAppend
	}

	deps, err := rt.deps(noCache)
	if err != nil {
		return err
	}
	adapter, err := providers.NewAt(args[0], baseURL, deps)
	if err != nil {
		return err
	}
	if bom, ok := adapter.(*providers.BOMProvider); ok {
		bom.SetAggregation(aggregation)
		bom.SetTimezone(timezone)
	}

	sink, err := store.NewCSVStore(outputDir)
	if err != nil {
		return err
	}
	client, err := hydro.NewClient(adapter,
		hydro.WithMetadataFile(metadataFile),
		hydro.WithSink(sink),
		hydro.WithLogger(rt.logger),
	)
	if err != nil {
		return err
	}

	res, err := client.GetData(cmd.Context(), hydro.DataRequest{
		Sites:             sites,
		SitesFromMetadata: fromMetadata,
		Query: hydro.Query{
			Variables: common.SplitLists(variables),
			Frequency: frequency,
			Statistic: statistic,
			Start:     start,
			End:       end,
		},
		Write:                  true,
		Mode:                   mode,
		StopOnExhaustedRetries: stopOnError,
		Workers:                workers,
	})
	if res != nil {
		printSummary(cmd, res)
	}
	if err != nil {
		return err
	}
	if failed := res.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d sites failed", len(failed), len(res.Sites))
	}
	return nil
}
