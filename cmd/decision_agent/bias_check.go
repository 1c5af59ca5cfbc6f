package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/decision-letters/internal/observability"
)

var biasCheckCmd = &cobra.Command{
	Use:   "bias-check <text-file>",
	Short: "Scan a letter for biased language",
	Long:  "Runs the bias rules for a jurisdiction over a letter and prints the score and warnings. Exits non-zero when the letter fails.",
	Args:  cobra.ExactArgs(1),
	RunE:  runBiasCheck,
}

var (
	biasJurisdiction string
	biasJSON         bool
)

func init() {
	biasCheckCmd.Flags().StringVar(&biasJurisdiction, "jurisdiction", "", "Jurisdiction whose overlay applies (US, EU, UK, CA)")
	biasCheckCmd.Flags().BoolVar(&biasJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(biasCheckCmd)
}

func runBiasCheck(cmd *cobra.Command, args []string) error {
	text, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read text file %s: %w", args[0], err)
	}

	detector, err := configuredDetector()
	if err != nil {
		return err
	}

	result := detector.Detect(string(text), biasJurisdiction)
	if biasJSON {
		if err := writeJSON(cmd, result); err != nil {
			return err
		}
	} else {
		observability.NewPrinter(cmd.OutOrStdout()).PrintBiasResult(result, biasJurisdiction)
	}
	if !result.Passed {
		return errCheckFailed
	}
	return nil
}
