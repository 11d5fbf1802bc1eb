package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/document"
	"github.com/jonathan/contract-signer/internal/observability"
	"github.com/jonathan/contract-signer/internal/schemas"
	"github.com/jonathan/contract-signer/internal/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var renderCmd = &cobra.Command{
	Use:   "render [contract.json...]",
	Short: "Render contract files to PDF",
	Long: `Render one or more contract JSON files ({"kind", "jurisdiction", "data"}) to PDF using the
built-in templates or the configured templates directory. Field positions are written next to each PDF.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRender,
}

var (
	renderOutDir   string
	renderParallel int
)

func init() {
	renderCmd.Flags().StringVarP(&renderOutDir, "out", "o", ".", "Output directory")
	renderCmd.Flags().IntVarP(&renderParallel, "parallel", "p", 2, "Number of concurrent renders")
	rootCmd.AddCommand(renderCmd)
}

// contractFile is the on-disk form of a contract to render.
type contractFile struct {
	ID           uuid.UUID       `json:"id"`
	Kind         string          `json:"kind"`
	Jurisdiction string          `json:"jurisdiction"`
	TemplateID   *uuid.UUID      `json:"template_id"`
	Data         json.RawMessage `json:"data"`
}

// loadContractFile reads and validates a contract file. Contracts without an id get a new one.
func loadContractFile(path string) (*types.Contract, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract file: %w", err)
	}
	var f contractFile
	if err := json.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract JSON: %w", err)
	}
	kind, err := types.ParseKind(f.Kind)
	if err != nil {
		return nil, err
	}
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("contract data is missing")
	}
	if err := schemas.Validate(schemas.ContractData, f.Data); err != nil {
		return nil, err
	}

	c := &types.Contract{
		ID:           f.ID,
		Kind:         kind,
		Jurisdiction: f.Jurisdiction,
		TemplateID:   f.TemplateID,
		Status:       types.StatusDraft,
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if err := json.Unmarshal(f.Data, &c.Data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract data: %w", err)
	}
	return c, nil
}

// outputBase is the output path of in without its extension.
func outputBase(outDir, in string) string {
	name := filepath.Base(in)
	return filepath.Join(outDir, strings.TrimSuffix(name, filepath.Ext(name)))
}

type rendered struct {
	contract *types.Contract
	doc      *document.Document
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	contracts := make([]*types.Contract, len(args))
	for i, path := range args {
		c, err := loadContractFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		contracts[i] = c
	}

	if err := os.MkdirAll(renderOutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pipeline := newPipeline(cfg, nil, log)
	results := make([]rendered, len(args))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(max(renderParallel, 1))
	for i, path := range args {
		g.Go(func() error {
			doc, err := renderOne(ctx, pipeline, contracts[i], outputBase(renderOutDir, path))
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = rendered{contract: contracts[i], doc: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	printer := observability.NewPrinter(cmd.OutOrStdout())
	for _, r := range results {
		printer.PrintRenderSummary(r.contract.ID, r.doc)
	}
	return nil
}

func renderOne(ctx context.Context, pipeline *document.Pipeline, c *types.Contract, base string) (*document.Document, error) {
	doc, err := pipeline.Render(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(base+".pdf", doc.PDF, 0644); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	if len(doc.Positions) > 0 {
		positionsJSON, err := json.MarshalIndent(doc.Positions, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal positions: %w", err)
		}
		if err := os.WriteFile(base+".positions.json", positionsJSON, 0644); err != nil {
			return nil, fmt.Errorf("failed to write positions: %w", err)
		}
	}
	return doc, nil
}
