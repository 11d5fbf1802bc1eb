// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/document"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/signing"
	"github.com/jonathan/contract-signer/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 64
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted CLI output
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

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintPositions outputs the field rectangles of a layout, final page first.
func (p *Printer) PrintPositions(layout types.Layout, pages int, stage types.Stage, ps []positions.Position) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Layout:  %s\n", layout))
	sb.WriteString(fmt.Sprintf("Pages:   %d\n", pages))
	if stage != "" {
		sb.WriteString(fmt.Sprintf("Stage:   %s\n", stage))
	}
	sb.WriteString(fmt.Sprintf("Fields:  %s\n", countByKind(ps)))

	var final, initials []positions.Position
	for _, pos := range ps {
		if pos.Page == pages {
			final = append(final, pos)
		} else {
			initials = append(initials, pos)
		}
	}

	if len(final) > 0 {
		sb.WriteString("\nFinal page:\n")
		for _, pos := range final {
			sb.WriteString(formatPosition(pos))
		}
	}
	if len(initials) > 0 {
		sb.WriteString("\nInitials:\n")
		count := min(len(initials), maxItemsToShow)
		for _, pos := range initials[:count] {
			sb.WriteString(formatPosition(pos))
		}
		if len(initials) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(initials)-maxItemsToShow))
		}
	}

	p.printBox("FIELD POSITIONS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRenderSummary outputs what a render produced.
func (p *Printer) PrintRenderSummary(contractID uuid.UUID, doc *document.Document) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Contract: %s\n", contractID))
	if doc.Template != nil {
		sb.WriteString(fmt.Sprintf("Template: %s", doc.Template.Scope))
		if doc.Template.TemplateID != nil {
			sb.WriteString(fmt.Sprintf(" (%s)", doc.Template.TemplateID))
		}
		sb.WriteString("\n")
	}
	layout := string(doc.Layout)
	if layout == "" {
		layout = "(self-contained)"
	}
	sb.WriteString(fmt.Sprintf("Layout:   %s\n", layout))
	sb.WriteString(fmt.Sprintf("Pages:    %d\n", doc.Pages))
	sb.WriteString(fmt.Sprintf("PDF size: %s\n", formatBytes(len(doc.PDF))))
	if len(doc.Positions) > 0 {
		sb.WriteString(fmt.Sprintf("Fields:   %s\n", countByKind(doc.Positions)))
	}

	p.printBox("RENDERED CONTRACT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSendResult outputs the provider document and signing links of a send.
func (p *Printer) PrintSendResult(result *signing.SendResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Contract: %s\n", result.ContractID))
	sb.WriteString(fmt.Sprintf("Stage:    %s\n", result.Stage))
	sb.WriteString(fmt.Sprintf("Document: %s\n", result.DocumentID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", result.Status))

	if len(result.SigningURLs) > 0 {
		sb.WriteString("\nSigning links:\n")
		emails := make([]string, 0, len(result.SigningURLs))
		for email := range result.SigningURLs {
			emails = append(emails, email)
		}
		sort.Strings(emails)
		for _, email := range emails {
			sb.WriteString(fmt.Sprintf("  • %s\n    %s\n", email, result.SigningURLs[email]))
		}
	}
	if result.PersistError != "" {
		sb.WriteString(fmt.Sprintf("\n⚠ %s\n", result.PersistError))
	}

	p.printBox("SENT FOR SIGNATURE", strings.TrimSuffix(sb.String(), "\n"))
}

func formatPosition(pos positions.Position) string {
	return fmt.Sprintf("  p%-3d %-9s %-6s x=%5.1f y=%5.1f w=%4.1f h=%4.1f\n",
		pos.Page, pos.Kind, pos.Party, pos.X, pos.Y, pos.Width, pos.Height)
}

func countByKind(ps []positions.Position) string {
	counts := map[positions.FieldKind]int{}
	for _, pos := range ps {
		counts[pos.Kind]++
	}
	var parts []string
	for _, kind := range []positions.FieldKind{positions.FieldSignature, positions.FieldDate, positions.FieldInitials} {
		if counts[kind] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[kind], kind))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
