// Package signing drives sends to the e-signature provider: the single-stage send and the
// seller-then-buyer two-stage flow.
package signing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/billing"
	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/events"
	"github.com/jonathan/contract-signer/internal/lock"
	"github.com/jonathan/contract-signer/internal/pdf"
	"github.com/jonathan/contract-signer/internal/positions"
	"github.com/jonathan/contract-signer/internal/storage"
	"github.com/jonathan/contract-signer/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// History event names written by the orchestrator.
const (
	HistorySent = "sent"
)

// PDF sources recorded in send history.
const (
	sourceRendered       = "rendered"
	sourceSignedDownload = "signed_download"
)

// SendRequest asks for one provider document. Stage is optional: it defaults to the buyer
// stage for contracts whose seller has signed and to the initial send otherwise.
type SendRequest struct {
	ContractID      uuid.UUID `json:"contract_id" validate:"required"`
	Stage           string    `json:"stage,omitempty" validate:"omitempty,oneof=single seller seller1 buyer seller2"`
	SendImmediately *bool     `json:"send_immediately,omitempty"`
}

// SendResult is the outcome of a send. PersistError is set when the status write failed.
type SendResult struct {
	ContractID   uuid.UUID         `json:"contract_id"`
	Stage        types.Stage       `json:"stage"`
	Layout       types.Layout      `json:"layout"`
	DocumentID   string            `json:"document_id"`
	SigningURLs  map[string]string `json:"signing_urls"`
	Status       types.Status      `json:"status"`
	Pages        int               `json:"pages"`
	PersistError string            `json:"persist_error,omitempty"`
}

// Config holds orchestrator settings.
type Config struct {
	RedirectURL     string
	SendImmediately bool
}

// Deps are the orchestrator's collaborators. Store, Renderer and Provider are required.
type Deps struct {
	Store     ContractStore
	Renderer  DocumentRenderer
	Provider  Provider
	Billing   billing.Service
	Publisher events.Publisher
	Archive   storage.Archive
	Locker    lock.Locker
	// PageCount counts the pages of a downloaded PDF. Defaults to pdf.PageCount.
	PageCount func([]byte) (int, error)
	Now       func() time.Time
}

// Orchestrator sends contracts for signature.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	validate *validator.Validate
	log      *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator, filling optional collaborators with defaults.
func NewOrchestrator(deps Deps, cfg Config, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if deps.Billing == nil {
		deps.Billing = billing.Unlimited{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLogPublisher(log)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.PageCount == nil {
		deps.PageCount = pdf.PageCount
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(),
		log:      log.Named("signing"),
	}
}

// prepared is a PDF ready to be sent for one stage.
type prepared struct {
	stage      types.Stage
	layout     types.Layout
	pdf        []byte
	pages      int
	source     string
	templateID *uuid.UUID
	from       []types.Status
	to         types.Status
	firstSend  bool
}

// Send renders or reuses the contract PDF, creates the provider document for the stage and
// records the document id, signing URLs and new status on the contract.
func (o *Orchestrator) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, invalid(ReasonInvalid, "%v", err)
	}
	requested, err := types.ParseStage(req.Stage)
	if err != nil {
		return nil, invalid(ReasonInvalid, "%v", err)
	}

	release, err := o.deps.Locker.Lock(ctx, lock.Key(req.ContractID.String()))
	if err != nil {
		return nil, &UpstreamError{Op: "contract lock", Cause: err}
	}
	defer release()

	c, err := o.deps.Store.GetContract(ctx, req.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract %s: %w", req.ContractID, err)
	}
	if c == nil {
		return nil, &NotFoundError{ContractID: req.ContractID}
	}

	decision, err := o.deps.Billing.Check(ctx, c.CompanyID)
	if err != nil {
		return nil, &UpstreamError{Op: "billing check", Cause: err}
	}
	if decision.Blocked {
		reason := decision.Reason
		if reason == "" {
			reason = "subscription does not allow sending"
		}
		return nil, invalid(ReasonBilling, "%s", reason)
	}
	if strings.TrimSpace(c.Data.Seller.Name) == "" {
		return nil, invalid(ReasonInvalid, "seller name is required")
	}
	if strings.TrimSpace(c.Data.Seller.Email) == "" {
		return nil, invalid(ReasonInvalid, "seller email is required")
	}

	if requested == "" && c.Status == types.StatusSellerSigned {
		requested = types.StageBuyer
	}

	var p *prepared
	if requested == types.StageBuyer {
		p, err = o.prepareBuyer(ctx, c)
	} else {
		if !c.Status.Sendable() {
			return nil, invalid(ReasonStatus, "contract in status %q cannot be sent", c.Status)
		}
		if decision.QuotaExceeded && !decision.Overage {
			return nil, invalid(ReasonQuota, "contract quota exceeded")
		}
		p, err = o.prepareInitial(ctx, c, requested)
	}
	if err != nil {
		return nil, err
	}

	return o.send(ctx, c, p, req, decision)
}

// prepareInitial renders the contract for its first send.
func (o *Orchestrator) prepareInitial(ctx context.Context, c *types.Contract, requested types.Stage) (*prepared, error) {
	doc, err := o.deps.Renderer.Render(ctx, c)
	if err != nil {
		return nil, &UpstreamError{Op: "render", Cause: err}
	}

	stage := types.StageSingle
	if doc.Layout.TwoStage() {
		stage = types.StageSeller
	}
	if requested != "" && requested != stage {
		o.log.Infow("send stage follows layout", "contract_id", c.ID, "requested", requested,
			"stage", stage, "layout", doc.Layout)
	}

	var templateID *uuid.UUID
	if doc.Template != nil {
		templateID = doc.Template.TemplateID
	}
	return &prepared{
		stage:      stage,
		layout:     doc.Layout,
		pdf:        doc.PDF,
		pages:      doc.Pages,
		source:     sourceRendered,
		templateID: templateID,
		from:       []types.Status{types.StatusDraft, types.StatusReady},
		to:         types.StatusSent,
		firstSend:  true,
	}, nil
}

// prepareBuyer loads the seller-signed PDF for the second stage. A failed download falls back
// to a fresh render once.
func (o *Orchestrator) prepareBuyer(ctx context.Context, c *types.Contract) (*prepared, error) {
	switch c.Status {
	case types.StatusSellerSigned, types.StatusSent, types.StatusViewed:
	default:
		return nil, invalid(ReasonStatus, "buyer stage cannot be sent from status %q", c.Status)
	}

	layout, err := types.ParseLayout(c.CustomString(types.FieldSignatureLayout))
	if err != nil || !layout.TwoStage() {
		return nil, invalid(ReasonStatus, "contract does not use a two-stage signature layout")
	}
	sellerDoc := c.DocumentID(types.StageSeller)
	if sellerDoc == "" {
		return nil, invalid(ReasonStatus, "seller stage has not been sent")
	}
	if c.DocumentID(types.StageBuyer) != "" {
		return nil, invalid(ReasonStatus, "buyer stage has already been sent")
	}

	p := &prepared{
		stage:  types.StageBuyer,
		layout: layout,
		source: sourceSignedDownload,
		from:   []types.Status{types.StatusSent, types.StatusViewed, types.StatusSellerSigned},
		to:     types.StatusBuyerPending,
	}

	signed, err := o.deps.Provider.DownloadSignedDocument(ctx, sellerDoc)
	if err == nil {
		p.pages, err = o.deps.PageCount(signed)
	}
	if err == nil {
		p.pdf = signed
		return p, nil
	}

	o.log.Warnw("signed seller document unavailable, rendering fresh copy", "contract_id", c.ID,
		"document_id", sellerDoc, "error", err)
	doc, err := o.deps.Renderer.Render(ctx, c)
	if err != nil {
		return nil, &UpstreamError{Op: "render", Cause: err}
	}
	p.pdf, p.pages, p.source = doc.PDF, doc.Pages, sourceRendered
	return p, nil
}

func (o *Orchestrator) send(ctx context.Context, c *types.Contract, p *prepared, req SendRequest, decision billing.Decision) (*SendResult, error) {
	ps, err := positions.ForStage(p.layout, p.pages, p.stage)
	if err != nil {
		return nil, err
	}
	recipients, fields, err := buildRecipients(c, p.layout, ps)
	if err != nil {
		return nil, err
	}

	sendNow := o.cfg.SendImmediately
	if req.SendImmediately != nil {
		sendNow = *req.SendImmediately
	}
	ref := esign.Reference{ContractID: c.ID, Kind: c.Kind, Stage: p.stage}

	created, err := o.deps.Provider.CreateDocumentWithSignatures(ctx, p.pdf, esign.CreateRequest{
		Title:             documentTitle(c, p.stage),
		ExternalReference: ref.String(),
		Recipients:        recipients,
		Fields:            fields,
		SendImmediately:   sendNow,
		RedirectURL:       o.cfg.RedirectURL,
	})
	if err != nil {
		return nil, &UpstreamError{Op: "create provider document", Cause: err}
	}

	urls := make(map[string]string, len(created.Recipients))
	for _, r := range created.Recipients {
		if r.SigningURL != "" {
			urls[strings.ToLower(r.Email)] = r.SigningURL
		}
	}
	result := &SendResult{
		ContractID:  c.ID,
		Stage:       p.stage,
		Layout:      p.layout,
		DocumentID:  created.DocumentID,
		SigningURLs: urls,
		Status:      p.to,
		Pages:       p.pages,
	}

	now := o.deps.Now().UTC()
	custom := map[string]any{
		types.DocumentIDField(p.stage):                created.DocumentID,
		types.FieldSigningURLPrefix + string(p.stage): urls,
	}
	if p.firstSend {
		custom[types.FieldSignatureLayout] = string(p.layout)
		if p.templateID != nil {
			custom[types.FieldTemplateID] = p.templateID.String()
		}
	}
	t := types.Transition{ContractID: c.ID, From: p.from, To: p.to, CustomFields: custom}
	if p.to == types.StatusSent {
		t.SentAt = &now
	}

	applied, terr := o.deps.Store.TransitionStatus(ctx, t)
	if terr == nil && !applied {
		terr = fmt.Errorf("contract left status %q before the send was recorded", c.Status)
	}
	o.appendHistory(ctx, c, p, created.DocumentID, ref.String(), applied, now)

	if terr != nil {
		o.log.Errorw("failed to record send", "contract_id", c.ID, "stage", p.stage,
			"document_id", created.DocumentID, "error", terr)
		if merr := o.deps.Store.MergeCustomFields(ctx, c.ID, custom); merr != nil {
			o.log.Errorw("failed to record provider document id", "contract_id", c.ID,
				"document_id", created.DocumentID, "error", merr)
		}
		perr := &PersistError{DocumentID: created.DocumentID, Cause: terr}
		result.Status = c.Status
		result.PersistError = perr.Error()
		return result, perr
	}

	o.afterSend(ctx, c, p, created.DocumentID, decision)

	o.log.Infow("contract sent", "contract_id", c.ID, "stage", p.stage, "layout", p.layout,
		"document_id", created.DocumentID, "pages", p.pages, "pdf_source", p.source)
	return result, nil
}

func (o *Orchestrator) appendHistory(ctx context.Context, c *types.Contract, p *prepared, documentID, ref string, applied bool, now time.Time) {
	err := o.deps.Store.AppendHistory(ctx, &types.HistoryEntry{
		ID:         uuid.New(),
		ContractID: c.ID,
		Event:      HistorySent,
		Stage:      p.stage,
		Party:      string(p.stage.Party()),
		FromStatus: c.Status,
		ToStatus:   p.to,
		Applied:    applied,
		Metadata: map[string]any{
			"document_id":        documentID,
			"external_reference": ref,
			"layout":             string(p.layout),
			"pages":              p.pages,
			"pdf_source":         p.source,
		},
		CreatedAt: now,
	})
	if err != nil {
		o.log.Errorw("failed to append send history", "contract_id", c.ID, "error", err)
	}
}

// afterSend archives the sent PDF, updates billing counters and publishes the notification.
// Failures are logged; the send has already succeeded.
func (o *Orchestrator) afterSend(ctx context.Context, c *types.Contract, p *prepared, documentID string, decision billing.Decision) {
	var g errgroup.Group

	if o.deps.Archive != nil {
		g.Go(func() error {
			key := storage.RenderKey(c.ID, p.stage)
			if err := o.deps.Archive.Put(ctx, key, p.pdf); err != nil {
				return fmt.Errorf("archive: %w", err)
			}
			return o.deps.Store.MergeCustomFields(ctx, c.ID, map[string]any{
				types.FieldArchivedPDFPrefix + string(p.stage): key,
			})
		})
	}

	if p.firstSend {
		g.Go(func() error {
			var errs []error
			if err := o.deps.Billing.IncrementContractsUsed(ctx, c.CompanyID); err != nil {
				errs = append(errs, fmt.Errorf("increment contracts used: %w", err))
			}
			if decision.Overage {
				if err := o.deps.Billing.ChargeOverage(ctx, c.CompanyID, c.ID); err != nil {
					errs = append(errs, fmt.Errorf("charge overage: %w", err))
				}
			}
			return errors.Join(errs...)
		})
	}

	g.Go(func() error {
		return o.deps.Publisher.Publish(ctx, events.Event{
			Type:       events.ContractSent,
			ContractID: c.ID,
			CompanyID:  c.CompanyID,
			Stage:      p.stage,
			Status:     p.to,
			DocumentID: documentID,
			Recipient:  c.Data.Seller.Email,
			OccurredAt: o.deps.Now().UTC(),
		})
	})

	if err := g.Wait(); err != nil {
		o.log.Warnw("post-send step failed", "contract_id", c.ID, "stage", p.stage, "error", err)
	}
}

// buildRecipients maps the parties owning positions to provider recipients and fields.
func buildRecipients(c *types.Contract, layout types.Layout, ps []positions.Position) ([]esign.Recipient, []esign.Field, error) {
	var recipients []esign.Recipient
	emails := make(map[types.Party]string)
	for i, party := range positions.Parties(ps) {
		id := recipientFor(&c.Data, layout, party)
		if strings.TrimSpace(id.Name) == "" || strings.TrimSpace(id.Email) == "" {
			return nil, nil, invalid(ReasonInvalid, "%s name and email are required", partyLabel(layout, party))
		}
		email := strings.ToLower(strings.TrimSpace(id.Email))
		emails[party] = email
		recipients = append(recipients, esign.Recipient{
			Name:         id.Name,
			Email:        email,
			Role:         "SIGNER",
			SigningOrder: i + 1,
		})
	}

	fields := make([]esign.Field, 0, len(ps))
	for _, p := range ps {
		fields = append(fields, esign.Field{
			Page:           p.Page,
			X:              p.X,
			Y:              p.Y,
			Width:          p.Width,
			Height:         p.Height,
			RecipientEmail: emails[p.Party],
			Type:           fieldType(p.Kind),
		})
	}
	return recipients, fields, nil
}

// recipientFor returns who signs for party. In the two-seller layout the buyer party is the
// second seller; otherwise it is the assignee when one is set, else the buyer.
func recipientFor(d *types.ContractData, layout types.Layout, party types.Party) types.Identity {
	if party == types.PartySeller {
		return d.Seller
	}
	if layout == types.LayoutTwoSeller {
		return d.SecondSeller
	}
	if d.Assignee.Email != "" {
		return d.Assignee
	}
	return d.EffectiveBuyer()
}

func partyLabel(layout types.Layout, party types.Party) string {
	switch {
	case party == types.PartySeller:
		return "seller"
	case layout == types.LayoutTwoSeller:
		return "second seller"
	default:
		return "buyer"
	}
}

func fieldType(k positions.FieldKind) string {
	switch k {
	case positions.FieldInitials:
		return esign.FieldTypeInitials
	case positions.FieldDate:
		return esign.FieldTypeDate
	default:
		return esign.FieldTypeSignature
	}
}

func documentTitle(c *types.Contract, stage types.Stage) string {
	title := "Purchase Agreement"
	if c.Kind == types.KindAssignment {
		title = "Assignment of Contract"
	}
	if addr := c.Data.Property.Address; addr != "" {
		title += " - " + addr
	}
	switch stage {
	case types.StageSeller:
		title += " (Seller)"
	case types.StageBuyer:
		title += " (Buyer)"
	}
	return title
}
