package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/decision-letters/internal/config"
	"github.com/jonathan/decision-letters/internal/explain"
	"github.com/jonathan/decision-letters/internal/observability"
	"github.com/jonathan/decision-letters/internal/schemas"
	"github.com/jonathan/decision-letters/internal/signing"
	"github.com/jonathan/decision-letters/internal/types"
)

var verifyReceiptCmd = &cobra.Command{
	Use:   "verify-receipt <file>",
	Short: "Verify a decision receipt",
	Long: `Verifies the signature of an explainable receipt with RECEIPT_SIGNING_SECRET.

The file is either a decision response (receipt, card, letter, reasons,
template_version) or a verification body (receipt, card, payload). When the
card and payload are present the hash is recomputed and compared too.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerifyReceipt,
}

var verifyShowCard bool

func init() {
	verifyReceiptCmd.Flags().BoolVar(&verifyShowCard, "show-card", false, "Print the card when the file contains one")
	rootCmd.AddCommand(verifyReceiptCmd)
}

// receiptFile accepts both a decision response and a verification body
type receiptFile struct {
	Receipt         *types.ExplainableReceipt `json:"receipt"`
	Card            *types.ExplainableCard    `json:"card"`
	Payload         *types.DecisionPayload    `json:"payload"`
	Letter          string                    `json:"letter"`
	Reasons         []string                  `json:"reasons"`
	TemplateVersion string                    `json:"template_version"`
}

func (f receiptFile) payload() *types.DecisionPayload {
	if f.Payload != nil {
		return f.Payload
	}
	if f.Letter == "" {
		return nil
	}
	return &types.DecisionPayload{Letter: f.Letter, Reasons: f.Reasons, TemplateVersion: f.TemplateVersion}
}

func runVerifyReceipt(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read receipt file %s: %w", args[0], err)
	}
	var file receiptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse receipt file: %w", err)
	}
	if file.Receipt == nil {
		return errors.New("receipt file has no receipt")
	}
	if err := schemas.ValidateReceipt(*file.Receipt); err != nil {
		return fmt.Errorf("receipt is malformed: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireSigning(); err != nil {
		return err
	}
	signer, err := signing.NewSigner([]byte(cfg.SigningSecret))
	if err != nil {
		return err
	}
	verifier, err := explain.NewGenerator(signer)
	if err != nil {
		return err
	}

	signatureOK := verifier.VerifyReceipt(*file.Receipt)
	var contentsOK *bool
	if payload := file.payload(); file.Card != nil && payload != nil {
		ok, err := verifier.VerifyContents(*file.Receipt, *file.Card, *payload)
		if err != nil {
			return fmt.Errorf("failed to hash card and payload: %w", err)
		}
		contentsOK = &ok
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	printer.PrintReceiptVerification(*file.Receipt, signatureOK, contentsOK)
	if verifyShowCard && file.Card != nil {
		printer.PrintCard(*file.Card)
	}

	if !signatureOK || (contentsOK != nil && !*contentsOK) {
		return errCheckFailed
	}
	return nil
}
