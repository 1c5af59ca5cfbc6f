// Package main provides the entry point for the decision letter service and its checks.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "decision_agent",
	Short: "Decision letter generation and compliance service",
	Long: "decision_agent generates candidate decision letters with explainable cards and signed receipts, " +
		"and checks templates, letters and receipts for compliance.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
