// Package document runs the two-phase document pipeline: resolve, interpolate, compose and
// render (phase one, which yields the page count), then map field positions (phase two).
package document

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/contract-signer/internal/pdf"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/rendering"
	"github.com/jonathan/contract-signer/internal/signature"
	"github.com/jonathan/contract-signer/internal/templates"
	"github.com/jonathan/contract-signer/internal/types"
	"go.uber.org/zap"
)

// TemplateResolver resolves the template for a contract.
type TemplateResolver interface {
	Resolve(ctx context.Context, req templates.Request) (*templates.Resolved, error)
}

// Composed is contract HTML ready for rendering.
type Composed struct {
	HTML     string
	Layout   types.Layout
	Template *templates.Resolved
}

// Document is a rendered contract with the field positions for its layout.
type Document struct {
	Composed
	PDF       []byte
	Pages     int
	Positions []positions.Position
}

// Pipeline builds contract documents.
type Pipeline struct {
	resolver    TemplateResolver
	composer    *signature.Composer
	renderer    pdf.Renderer
	clauseStart rendering.ClauseNumber
	now         func() time.Time
	log         *zap.SugaredLogger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClauseStart sets the clause number used when neither the template text nor the template
// record gives one.
func WithClauseStart(n rendering.ClauseNumber) Option {
	return func(p *Pipeline) {
		if !n.IsZero() {
			p.clauseStart = n
		}
	}
}

// WithClock overrides the time used for the default contract date.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline.
func NewPipeline(resolver TemplateResolver, composer *signature.Composer, renderer pdf.Renderer, log *zap.SugaredLogger, opts ...Option) *Pipeline {
	if composer == nil {
		composer = signature.NewComposer()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	p := &Pipeline{
		resolver:    resolver,
		composer:    composer,
		renderer:    renderer,
		clauseStart: rendering.DefaultClauseStart,
		now:         time.Now,
		log:         log.Named("document"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compose resolves the contract's template, merges its data and appends the signature page.
func (p *Pipeline) Compose(ctx context.Context, c *types.Contract) (*Composed, error) {
	resolved, err := p.resolver.Resolve(ctx, templates.Request{
		Kind:         c.Kind,
		Jurisdiction: c.Jurisdiction,
		CompanyID:    c.CompanyID,
		TemplateID:   c.TemplateID,
	})
	if err != nil {
		return nil, err
	}
	if err := rendering.ValidateBlocks(resolved.HTML); err != nil {
		return nil, err
	}

	layout := p.layoutFor(c, resolved)
	opts := rendering.Options{Now: p.now(), ClauseStart: p.clauseStartFor(resolved)}

	html := rendering.Interpolate(resolved.HTML, &c.Data, opts)
	html, err = p.composer.Compose(html, layout, &c.Data, opts)
	if err != nil {
		return nil, err
	}
	return &Composed{HTML: html, Layout: layout, Template: resolved}, nil
}

// Preview composes the contract and strips every unfilled token. No PDF is produced.
func (p *Pipeline) Preview(ctx context.Context, c *types.Contract) (*Composed, error) {
	composed, err := p.Compose(ctx, c)
	if err != nil {
		return nil, err
	}
	composed.HTML = rendering.StripUnfilled(composed.HTML)
	return composed, nil
}

// Render composes and renders the contract, then maps field positions from the page count.
func (p *Pipeline) Render(ctx context.Context, c *types.Contract) (*Document, error) {
	composed, err := p.Compose(ctx, c)
	if err != nil {
		return nil, err
	}

	res, err := p.renderer.Render(ctx, composed.HTML, pdf.Options{Footer: pdf.FooterOptions{
		BuyerInitials: c.Data.BuyerInitials,
		TwoStage:      composed.Layout.TwoStage(),
	}})
	if err != nil {
		return nil, err
	}

	ps, err := positions.For(composed.Layout, res.Pages)
	if err != nil {
		return nil, err
	}

	p.log.Infow("rendered contract", "contract_id", c.ID, "layout", composed.Layout,
		"template_scope", composed.Template.Scope, "pages", res.Pages)
	return &Document{Composed: *composed, PDF: res.PDF, Pages: res.Pages, Positions: ps}, nil
}

// layoutFor picks the layout recorded on the contract, then the template's, then the default.
func (p *Pipeline) layoutFor(c *types.Contract, resolved *templates.Resolved) types.Layout {
	if recorded := c.CustomString(types.FieldSignatureLayout); recorded != "" {
		if l, err := types.ParseLayout(recorded); err == nil {
			return l
		}
		p.log.Warnw("ignoring unknown recorded signature layout", "contract_id", c.ID, "layout", recorded)
	}
	if resolved.Layout != "" {
		return resolved.Layout
	}
	return signature.DefaultLayout
}

func (p *Pipeline) clauseStartFor(resolved *templates.Resolved) rendering.ClauseNumber {
	if resolved.ClauseStart != "" {
		n, err := rendering.ParseClauseNumber(resolved.ClauseStart)
		if err == nil {
			return n
		}
		p.log.Warnw("ignoring invalid template clause start", "clause_start", resolved.ClauseStart,
			"error", fmt.Sprint(err))
	}
	return p.clauseStart
}
