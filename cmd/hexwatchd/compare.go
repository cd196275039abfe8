package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hexwatch-backend/internal/colorimetry"
)

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare HEX1 HEX2",
		Short: "Score the distance between two colors",
		Long: `Compare prints the CIEDE2000 and CIE76 distance between two colors.
Colors are six hex digits with an optional '#' or '0x' prefix.

Examples:
  hexwatchd compare F2DF11 "#F7DA33"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lab1, err := colorimetry.HexToLab(args[0])
			if err != nil {
				return fmt.Errorf("HEX1: %w", err)
			}
			lab2, err := colorimetry.HexToLab(args[1])
			if err != nil {
				return fmt.Errorf("HEX2: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %.4f\n", colorimetry.MetricCIEDE2000, colorimetry.CIEDE2000(lab1, lab2))
			fmt.Fprintf(out, "%s: %.4f\n", colorimetry.MetricCIE76, colorimetry.Euclidean(lab1, lab2))
			return nil
		},
	}
}
