package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/config"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/observability"
)

// errCheckFailed makes the process exit non-zero after a failed check has been printed
var errCheckFailed = errors.New("check failed")

var lintCmd = &cobra.Command{
	Use:   "lint <template-file>",
	Short: "Lint a decision letter template",
	Long:  "Checks a letter template for missing placeholders, forbidden phrases, biased language, tone and length. Exits non-zero when any error is found.",
	Args:  cobra.ExactArgs(1),
	RunE:  runLint,
}

var (
	lintJurisdiction string
	lintLocale       string
	lintRequired     []string
	lintJSON         bool
)

func init() {
	lintCmd.Flags().StringVar(&lintJurisdiction, "jurisdiction", "", "Jurisdiction whose bias overlay applies (US, EU, UK, CA)")
	lintCmd.Flags().StringVar(&lintLocale, "locale", "", "Template locale")
	lintCmd.Flags().StringSliceVar(&lintRequired, "required", nil, "Required placeholders (default candidate_name, job_title)")
	lintCmd.Flags().BoolVar(&lintJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	template, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read template file %s: %w", args[0], err)
	}

	detector, err := configuredDetector()
	if err != nil {
		return err
	}

	ctx := lint.DefaultContext()
	if lintJurisdiction != "" {
		ctx.Jurisdiction = lintJurisdiction
	}
	if lintLocale != "" {
		ctx.Locale = lintLocale
	}
	if len(lintRequired) > 0 {
		ctx.RequiredPlaceholders = lintRequired
	}

	result := lint.NewLinter(detector).Lint(string(template), ctx)
	if lintJSON {
		if err := writeJSON(cmd, result); err != nil {
			return err
		}
	} else {
		observability.NewPrinter(cmd.OutOrStdout()).PrintLintResult(result)
	}
	if !result.Passed {
		return errCheckFailed
	}
	return nil
}

// configuredDetector builds a detector with the bias policy from the environment
func configuredDetector() (*bias.Detector, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return bias.NewDetector(bias.WithPolicy(cfg.BiasPolicy())), nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
