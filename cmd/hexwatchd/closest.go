package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/palette"
)

// NewClosestCmd creates the closest command.
func NewClosestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "closest HEX SLOT",
		Short: "Rank the catalog colors nearest to a color",
		Long: `Closest ranks the reference colors of an armor slot (HELMET, CHESTPLATE,
LEGGINGS or BOOTS) together with the shared dyes against HEX. Names that
tie on score are printed on one line.

Examples:
  hexwatchd closest F2DF11 CHESTPLATE
  hexwatchd closest F2DF11 BOOTS --metric cie76 --limit 10`,
		Args: cobra.ExactArgs(2),
		RunE: runClosest,
	}

	cmd.Flags().StringP("metric", "m", colorimetry.MetricCIEDE2000, "Distance metric: ciede2000 or cie76")
	cmd.Flags().IntP("limit", "n", 0, "Number of ranks to print (default catalog.results)")

	return cmd
}

func runClosest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	lab, err := colorimetry.HexToLab(args[0])
	if err != nil {
		return err
	}
	metricName, _ := cmd.Flags().GetString("metric")
	metric, err := colorimetry.MetricByName(metricName)
	if err != nil {
		return err
	}
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		limit = cfg.Catalog.Results
	}

	catalog, err := palette.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	matches, err := newRanker(cfg, catalog).Closest(lab, strings.ToUpper(args[1]), metric, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "no catalog entries")
		return nil
	}
	for i, m := range matches {
		fmt.Fprintf(out, "%d. %s: %.4f\n", i+1, m.Names, m.Score)
	}
	return nil
}
