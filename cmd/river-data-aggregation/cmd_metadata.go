package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/i474232898/river-data-aggregation/internal/common"
	"github.com/i474232898/river-data-aggregation/internal/hydro"
	"github.com/i474232898/river-data-aggregation/internal/hydro/providers"
	"github.com/i474232898/river-data-aggregation/internal/store"
)

func metadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-metadata <source>",
		Short: "Download the station list of a source to a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE:  runMetadata,
	}
	cmd.Flags().String("variable", hydro.VariableDischarge, "Variable the stations must measure (nwis, bom)")
	cmd.Flags().StringSlice("state-codes", nil, "US state codes to query (nwis; default all)")
	cmd.Flags().String("entity", "stations", "Hub'Eau entity: stations or sites (eaufrance)")
	cmd.Flags().StringP("output", "o", "", "Output CSV path (default <source>_metadata.csv)")
	cmd.Flags().Bool("no-cache", false, "Bypass the on-disk response cache")
	cmd.Flags().String("base-url", "", "Override the upstream base URL")
	cmd.Flags().MarkHidden("base-url")
	return cmd
}

func runMetadata(cmd *cobra.Command, args []string) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	variable, _ := cmd.Flags().GetString("variable")
	stateCodes, _ := cmd.Flags().GetStringSlice("state-codes")
	entity, _ := cmd.Flags().GetString("entity")
	output, _ := cmd.Flags().GetString("output")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	baseURL, _ := cmd.Flags().GetString("base-url")

	deps, err := rt.deps(noCache)
	if err != nil {
		return err
	}
	adapter, err := providers.NewAt(args[0], baseURL, deps)
	if err != nil {
		return err
	}
	client, err := hydro.NewClient(adapter, hydro.WithLogger(rt.logger))
	if err != nil {
		return err
	}

	err = client.LoadMetadata(cmd.Context(), hydro.MetadataQuery{
		Variable:   variable,
		StateCodes: common.SplitLists(stateCodes),
		Entity:     entity,
	})
	if err != nil {
		return err
	}

	if output == "" {
		output = adapter.Name() + "_metadata.csv"
	}
	if err := store.WriteMetadata(output, client.Metadata()); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	successColor.Fprintf(cmd.OutOrStdout(), "✓ %d stations written to %s\n", client.Metadata().Len(), output)
	return nil
}
