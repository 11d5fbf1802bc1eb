package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jonathan/contract-signer/internal/observability"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/types"
	"github.com/spf13/cobra"
)

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Print the signature field positions of a layout",
	Long:  "Prints the signature, date and initials rectangles a layout places on a document of the given page count.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printPositions(cmd.OutOrStdout(), positionsLayout, positionsPages, positionsStage, positionsJSON)
	},
}

var (
	positionsLayout string
	positionsPages  int
	positionsStage  string
	positionsJSON   bool
)

func init() {
	positionsCmd.Flags().StringVarP(&positionsLayout, "layout", "l", "", "Signature layout (required)")
	positionsCmd.Flags().IntVarP(&positionsPages, "pages", "n", 1, "Total page count")
	positionsCmd.Flags().StringVarP(&positionsStage, "stage", "s", "", "Signing stage: single, seller or buyer")
	positionsCmd.Flags().BoolVar(&positionsJSON, "json", false, "Print JSON instead of a table")

	if err := positionsCmd.MarkFlagRequired("layout"); err != nil {
		panic(fmt.Sprintf("failed to mark layout flag as required: %v", err))
	}
	rootCmd.AddCommand(positionsCmd)
}

func printPositions(out io.Writer, layoutName string, pages int, stageName string, asJSON bool) error {
	layout, err := types.ParseLayout(layoutName)
	if err != nil {
		return err
	}
	stage, err := types.ParseStage(stageName)
	if err != nil {
		return err
	}
	ps, err := positions.ForStage(layout, pages, stage)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ps)
	}
	observability.NewPrinter(out).PrintPositions(layout, pages, stage, ps)
	return nil
}
