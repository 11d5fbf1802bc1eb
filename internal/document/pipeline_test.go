package document

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/pdf"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/rendering"
	"github.com/jonathan/contract-signer/internal/signature"
	"github.com/jonathan/contract-signer/internal/templates"
	"github.com/jonathan/contract-signer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	resolved *templates.Resolved
	err      error
	got      templates.Request
}

func (f *fakeResolver) Resolve(_ context.Context, req templates.Request) (*templates.Resolved, error) {
	f.got = req
	return f.resolved, f.err
}

type fakeRenderer struct {
	pages int
	err   error
	html  string
	opts  pdf.Options
}

func (f *fakeRenderer) Render(_ context.Context, html string, opts pdf.Options) (*pdf.Result, error) {
	f.html, f.opts = html, opts
	if f.err != nil {
		return nil, f.err
	}
	return &pdf.Result{PDF: []byte("%PDF-fake"), Pages: f.pages}, nil
}

var fixed = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func contract() *types.Contract {
	return &types.Contract{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		Kind:         types.KindPurchase,
		Jurisdiction: "Texas",
		Status:       types.StatusDraft,
		Data: types.ContractData{
			Seller:        types.Identity{Name: "Jane Seller", Email: "jane@example.com"},
			BuyerInitials: "iVBORw0KGgo=",
			AIClauses:     []types.AIClause{{Title: "Access", Body: "Buyer may access."}},
		},
		CustomFields: map[string]any{},
	}
}

func newPipeline(res *fakeResolver, r *fakeRenderer, opts ...Option) *Pipeline {
	return NewPipeline(res, nil, r, nil, append([]Option{WithClock(func() time.Time { return fixed })}, opts...)...)
}

func TestRender_TwoPhase(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{
		HTML:   "<html><head></head><body><p>Seller {{seller_name}}</p><p>8.3 x</p>{{ai_clauses}}</body></html>",
		Layout: types.LayoutTwoColumn,
		Scope:  types.ScopeJurisdiction,
	}}
	r := &fakeRenderer{pages: 4}
	c := contract()

	doc, err := newPipeline(res, r).Render(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, "Texas", res.got.Jurisdiction)
	assert.Equal(t, c.CompanyID, res.got.CompanyID)
	assert.Equal(t, 4, doc.Pages)
	assert.Equal(t, types.LayoutTwoColumn, doc.Layout)
	assert.Contains(t, r.html, "Jane Seller")
	assert.Contains(t, r.html, "<strong>8.4</strong>")
	assert.Contains(t, r.html, signature.Marker)
	assert.Equal(t, "iVBORw0KGgo=", r.opts.Footer.BuyerInitials)
	assert.False(t, r.opts.Footer.TwoStage)

	want, err := positions.For(types.LayoutTwoColumn, 4)
	require.NoError(t, err)
	assert.Equal(t, want, doc.Positions)
}

func TestRender_TwoStageFooter(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{HTML: "<p>x</p>", Layout: types.LayoutThreeParty}}
	r := &fakeRenderer{pages: 2}

	doc, err := newPipeline(res, r).Render(context.Background(), contract())
	require.NoError(t, err)
	assert.True(t, r.opts.Footer.TwoStage)
	assert.Equal(t, types.LayoutThreeParty, doc.Layout)
}

func TestRender_RecordedLayoutWins(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{HTML: "<p>x</p>", Layout: types.LayoutTwoColumn}}
	c := contract()
	c.CustomFields[types.FieldSignatureLayout] = "two_seller"

	doc, err := newPipeline(res, &fakeRenderer{pages: 2}).Render(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, types.LayoutTwoSeller, doc.Layout)
}

func TestRender_SelfContainedTemplateUsesDefaultLayout(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{
		HTML:  `<html><body><p>x</p><div class="signature-page">own</div></body></html>`,
		Scope: types.ScopeBuiltIn,
	}}
	r := &fakeRenderer{pages: 3}

	doc, err := newPipeline(res, r).Render(context.Background(), contract())
	require.NoError(t, err)
	assert.Equal(t, signature.DefaultLayout, doc.Layout)
	assert.NotContains(t, r.html, signature.Marker)
}

func TestRender_ErrorsPropagate(t *testing.T) {
	cfgErr := &templates.ConfigError{Message: "missing"}
	_, err := newPipeline(&fakeResolver{err: cfgErr}, &fakeRenderer{}).Render(context.Background(), contract())
	assert.ErrorIs(t, err, cfgErr)

	renderErr := &pdf.RenderError{Message: "chrome died"}
	res := &fakeResolver{resolved: &templates.Resolved{HTML: "<p>x</p>", Layout: types.LayoutSellerOnly}}
	_, err = newPipeline(res, &fakeRenderer{err: renderErr}).Render(context.Background(), contract())
	assert.ErrorIs(t, err, renderErr)
}

func TestCompose_UnbalancedBlocks(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{HTML: "{{#if ai_clauses}}x", Layout: types.LayoutSellerOnly}}
	_, err := newPipeline(res, &fakeRenderer{}).Compose(context.Background(), contract())
	var tmplErr *rendering.TemplateError
	assert.True(t, errors.As(err, &tmplErr))
}

func TestCompose_ClauseStartPriority(t *testing.T) {
	c := contract()

	res := &fakeResolver{resolved: &templates.Resolved{HTML: "<p>no numbers</p>{{ai_clauses}}", Layout: types.LayoutSellerOnly, ClauseStart: "3.2"}}
	composed, err := newPipeline(res, &fakeRenderer{}).Compose(context.Background(), c)
	require.NoError(t, err)
	assert.Contains(t, composed.HTML, "<strong>3.2</strong>")

	res.resolved.ClauseStart = ""
	composed, err = newPipeline(res, &fakeRenderer{}, WithClauseStart(rendering.ClauseNumber{Major: 9, Minor: 1})).Compose(context.Background(), c)
	require.NoError(t, err)
	assert.Contains(t, composed.HTML, "<strong>9.1</strong>")

	res.resolved.ClauseStart = "garbage"
	composed, err = newPipeline(res, &fakeRenderer{}).Compose(context.Background(), c)
	require.NoError(t, err)
	assert.Contains(t, composed.HTML, "<strong>12.6</strong>")
}

func TestPreview_StripsUnfilled(t *testing.T) {
	res := &fakeResolver{resolved: &templates.Resolved{HTML: "<p>{{seller_name}} {{custom_note}}</p>", Layout: types.LayoutSellerOnly}}
	r := &fakeRenderer{}

	composed, err := newPipeline(res, r).Preview(context.Background(), contract())
	require.NoError(t, err)
	assert.Contains(t, composed.HTML, "Jane Seller")
	assert.NotContains(t, composed.HTML, "{{")
	assert.Empty(t, r.html, "preview must not render")
}
