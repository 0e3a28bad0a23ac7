package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"propertyvet/internal/platform/config"
	"propertyvet/internal/screening/engine"
	"propertyvet/internal/screening/models"
)

func newTiersCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "Print the providers and weights consulted by each tier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return printTiers(cmd.OutOrStdout(), cfg.Screening)
		},
	}
}

func printTiers(out io.Writer, cfg config.Screening) error {
	tiers, err := engine.Tiers(cfg)
	if err != nil {
		return err
	}
	weights, err := engine.Weights(cfg)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tPROVIDER\tWEIGHT")
	for _, tier := range models.Tiers {
		ids, _ := tiers.Providers(tier)
		w := weights.For(tier)
		for _, id := range ids {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\n", tier, id, w[id])
		}
	}
	return tw.Flush()
}
