// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonathan/decision-letters/internal/bias"
	"github.com/jonathan/decision-letters/internal/lint"
	"github.com/jonathan/decision-letters/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxTextWidth truncates matched text and messages in tables
	maxTextWidth = 48
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func (p *Printer) newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(p.out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

// PrintLintResult outputs the score and every issue of a template lint
func (p *Printer) PrintLintResult(result lint.Result) {
	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}
	p.printBox("TEMPLATE LINT", fmt.Sprintf("Status:   %s\nScore:    %d/100\nErrors:   %d\nWarnings: %d\nInfo:     %d",
		status, result.Score, len(result.Errors), len(result.Warnings), len(result.Info)))

	total := len(result.Errors) + len(result.Warnings) + len(result.Info)
	if total == 0 {
		return
	}
	tw := p.newTable(table.Row{"Severity", "Rule", "Position", "Message"})
	for _, group := range [][]lint.Issue{result.Errors, result.Warnings, result.Info} {
		for _, issue := range group {
			tw.AppendRow(table.Row{issue.Severity, issue.Rule, issue.Position, truncate(issue.Message, maxTextWidth)})
		}
	}
	tw.Render()
}

// PrintBiasResult outputs the bias score and warnings for a text
func (p *Printer) PrintBiasResult(result bias.Result, jurisdiction string) {
	status := "PASSED"
	if !result.Passed {
		status = "FAILED"
	}
	p.printBox("BIAS CHECK", fmt.Sprintf("Status:       %s\nScore:        %d/100\nJurisdiction: %s\nWarnings:     %d",
		status, result.Score, bias.NormalizeJurisdiction(jurisdiction), len(result.Warnings)))
	p.PrintWarnings(result.Warnings)
}

// PrintWarnings outputs bias warnings as a table. Nothing is printed for an empty list.
func (p *Printer) PrintWarnings(warnings []types.BiasWarning) {
	if len(warnings) == 0 {
		return
	}
	tw := p.newTable(table.Row{"Severity", "Category", "Text", "Position", "Suggestion"})
	for _, w := range warnings {
		tw.AppendRow(table.Row{w.Severity, w.Category, truncate(w.Text, maxTextWidth), w.Start, truncate(w.Suggestion, maxTextWidth)})
	}
	tw.Render()
}

// PrintCard outputs an explainable card with its rubric deltas
func (p *Printer) PrintCard(card types.ExplainableCard) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Decision:  %s\n", card.DecisionID))
	sb.WriteString(fmt.Sprintf("Candidate: %s\n", card.CandidateID))
	sb.WriteString(fmt.Sprintf("Job:       %s\n", card.JobTitle))
	sb.WriteString(fmt.Sprintf("Overall:   %.1f (passing %.0f)\n", card.OverallScore, card.PassingScore))
	if len(card.Reasons) > 0 {
		sb.WriteString("\nReasons:\n")
		for _, r := range card.Reasons {
			sb.WriteString(fmt.Sprintf("  • %s\n", r))
		}
	}
	if len(card.Strengths) > 0 {
		sb.WriteString("\nStrengths:\n")
		for _, s := range card.Strengths {
			sb.WriteString(fmt.Sprintf("  • %s\n", s))
		}
	}
	p.printBox(fmt.Sprintf("EXPLAINABLE CARD v%s", card.Version), sb.String())

	if len(card.Deltas) == 0 {
		return
	}
	tw := p.newTable(table.Row{"Criterion", "Weight", "Score", "Threshold", "Delta", "Deficient"})
	for _, d := range card.Deltas {
		score := fmt.Sprintf("%.1f", d.Score)
		if d.Missing {
			score = "missing"
		}
		tw.AppendRow(table.Row{d.Criterion, fmt.Sprintf("%.2f", d.Weight), score,
			fmt.Sprintf("%.1f", d.Threshold), fmt.Sprintf("%+.1f", d.Delta), d.IsDeficient})
	}
	tw.Render()
}

// PrintReceiptVerification outputs the outcome of verifying a receipt.
// contents is nil when only the signature was checked.
func (p *Printer) PrintReceiptVerification(receipt types.ExplainableReceipt, signature bool, contents *bool) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Decision:  %s\n", receipt.DecisionID))
	sb.WriteString(fmt.Sprintf("Algorithm: %s\n", receipt.Algorithm))
	sb.WriteString(fmt.Sprintf("Hash:      %s\n", receipt.Hash))
	sb.WriteString(fmt.Sprintf("Signature: %s\n", verdict(signature)))
	if contents != nil {
		sb.WriteString(fmt.Sprintf("Contents:  %s\n", verdict(*contents)))
	}
	p.printBox("RECEIPT VERIFICATION", sb.String())
}

func verdict(ok bool) string {
	if ok {
		return "valid"
	}
	return "INVALID"
}

func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}
