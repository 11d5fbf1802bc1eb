// Package webhook reconciles e-signature provider events into contract status and history.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/esign"
	"github.com/jonathan/contract-signer/internal/events"
	"github.com/jonathan/contract-signer/internal/lock"
	"github.com/jonathan/contract-signer/internal/logging"
	"github.com/jonathan/contract-signer/internal/storage"
	"github.com/jonathan/contract-signer/internal/types"
	"go.uber.org/zap"
)

// ContractStore reads and writes contracts. GetContract returns nil, nil when the contract
// does not exist.
type ContractStore interface {
	GetContract(ctx context.Context, id uuid.UUID) (*types.Contract, error)
	TransitionStatus(ctx context.Context, t types.Transition) (bool, error)
	MergeCustomFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	AppendHistory(ctx context.Context, e *types.HistoryEntry) error
}

// Downloader fetches fully signed documents from the provider.
type Downloader interface {
	DownloadSignedDocument(ctx context.Context, documentID string) ([]byte, error)
}

// Config holds webhook authentication settings.
type Config struct {
	Secret       string
	SecretHeader string
}

// Deps are the reconciler's collaborators. Only Store is required.
type Deps struct {
	Store      ContractStore
	Downloader Downloader
	Archive    storage.Archive
	Publisher  events.Publisher
	Locker     lock.Locker
	Now        func() time.Time
}

// Outcome describes what a delivery did.
type Outcome struct {
	ContractID uuid.UUID       `json:"contract_id"`
	Event      esign.EventType `json:"event"`
	Stage      types.Stage     `json:"stage,omitempty"`
	From       types.Status    `json:"from_status"`
	To         types.Status    `json:"to_status,omitempty"`
	Applied    bool            `json:"applied"`
}

// Reconciler applies provider events to contracts.
type Reconciler struct {
	deps Deps
	cfg  Config
	log  *zap.SugaredLogger
}

// NewReconciler creates a reconciler.
func NewReconciler(deps Deps, cfg Config, log *zap.SugaredLogger) *Reconciler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = esign.DefaultSecretHeader
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewLogPublisher(log)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Reconciler{deps: deps, cfg: cfg, log: log.Named("webhook")}
}

// Handle authenticates and processes one delivery.
func (r *Reconciler) Handle(ctx context.Context, header http.Header, body []byte) (*Outcome, error) {
	if err := r.Authenticate(header, body); err != nil {
		return nil, err
	}
	return r.Process(ctx, body)
}

// Authenticate accepts either the shared secret header or an HMAC signature of the body.
func (r *Reconciler) Authenticate(header http.Header, body []byte) error {
	var reason string
	switch {
	case r.cfg.Secret == "":
		reason = "no webhook secret configured"
	case esign.VerifySecret(r.cfg.Secret, header.Get(r.cfg.SecretHeader)):
		return nil
	case esign.VerifySignature(r.cfg.Secret, body, header.Get(esign.SignatureHeader)):
		return nil
	case header.Get(r.cfg.SecretHeader) == "" && header.Get(esign.SignatureHeader) == "":
		reason = "missing secret"
	default:
		reason = "invalid secret"
	}
	logging.Security(r.log, "webhook rejected", "reason", reason, "payload_hash", esign.PayloadHash(body))
	return &AuthError{Reason: reason}
}

// Process applies an authenticated delivery. Replays and out-of-order deliveries never move a
// contract backwards, and every delivery that names a known contract leaves a history entry.
func (r *Reconciler) Process(ctx context.Context, body []byte) (*Outcome, error) {
	ev, err := esign.ParseWebhook(body)
	if err != nil {
		return nil, r.ignore("unrecognized envelope", err, "payload_hash", esign.PayloadHash(body))
	}
	ref, err := esign.ParseReference(ev.ExternalID)
	if err != nil {
		return nil, r.ignore("unrecognized external reference", err,
			"event", ev.Type, "document_id", ev.DocumentID, "external_id", ev.ExternalID)
	}

	release, err := r.deps.Locker.Lock(ctx, lock.Key(ref.ContractID.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to lock contract %s: %w", ref.ContractID, err)
	}
	defer release()

	c, err := r.deps.Store.GetContract(ctx, ref.ContractID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contract %s: %w", ref.ContractID, err)
	}
	if c == nil {
		return nil, r.ignore("contract not found", nil, "contract_id", ref.ContractID, "event", ev.Type)
	}
	if ref.Kind != "" && ref.Kind != c.Kind {
		r.log.Warnw("external reference kind differs from contract", "contract_id", c.ID,
			"reference_kind", ref.Kind, "contract_kind", c.Kind)
	}

	stage, resolvedBy := resolveStage(c, ref, ev.DocumentID)
	out := &Outcome{ContractID: c.ID, Event: ev.Type, Stage: stage, From: c.Status}
	now := r.deps.Now().UTC()

	var t *types.Transition
	switch ev.Type {
	case esign.EventOpened:
		t = &types.Transition{From: []types.Status{types.StatusSent}, To: types.StatusViewed, ViewedAt: &now}
	case esign.EventSigned:
		// recorded in history only
	case esign.EventCompleted:
		t = r.completion(c, stage, now)
	case esign.EventRejected:
		t = &types.Transition{From: types.Predecessors(types.StatusCancelled), To: types.StatusCancelled}
	default:
		r.log.Infow("unhandled webhook event", "contract_id", c.ID, "event", ev.Type)
	}

	if t != nil {
		t.ContractID = c.ID
		out.To = t.To
		out.Applied, err = r.deps.Store.TransitionStatus(ctx, *t)
		if err != nil {
			r.log.Errorw("failed to apply webhook transition", "contract_id", c.ID, "event", ev.Type,
				"to", t.To, "error", err)
		}
	}

	r.appendHistory(ctx, c, ev, ref, stage, resolvedBy, out, body, now)
	if err != nil {
		return out, err
	}

	if out.Applied {
		r.afterTransition(ctx, c, ev, stage, out.To, now)
	}
	r.log.Infow("webhook processed", "contract_id", c.ID, "event", ev.Type, "stage", stage,
		"stage_resolved_by", resolvedBy, "from", out.From, "to", out.To, "applied", out.Applied)
	return out, nil
}

// completion picks the status a completed document moves the contract to. A completed seller
// document of a two-stage layout stops at seller_signed.
func (r *Reconciler) completion(c *types.Contract, stage types.Stage, now time.Time) *types.Transition {
	layout, _ := types.ParseLayout(c.CustomString(types.FieldSignatureLayout))
	if layout.TwoStage() {
		switch stage {
		case types.StageSeller:
			return &types.Transition{
				From:         []types.Status{types.StatusSent, types.StatusViewed},
				To:           types.StatusSellerSigned,
				CustomFields: map[string]any{types.FieldSellerSignedAt: now.Format(time.RFC3339)},
			}
		case types.StageBuyer:
		default:
			r.log.Warnw("cannot tell which stage completed", "contract_id", c.ID, "status", c.Status)
			return nil
		}
	}
	return &types.Transition{
		From:        types.Predecessors(types.StatusCompleted),
		To:          types.StatusCompleted,
		CompletedAt: &now,
	}
}

// afterTransition archives the signed document and publishes notifications. Failures are logged.
func (r *Reconciler) afterTransition(ctx context.Context, c *types.Contract, ev *esign.Event, stage types.Stage, to types.Status, now time.Time) {
	note := events.Event{
		ContractID: c.ID,
		CompanyID:  c.CompanyID,
		Stage:      stage,
		Status:     to,
		DocumentID: ev.DocumentID,
		OccurredAt: now,
	}
	switch to {
	case types.StatusSellerSigned:
		note.Type = events.ContractSellerSigned
		note.Recipient = c.Data.Seller.Email
	case types.StatusCompleted:
		note.Type = events.ContractCompleted
		r.archiveSigned(ctx, c.ID, ev.DocumentID)
	case types.StatusCancelled:
		note.Type = events.ContractCancelled
	default:
		return
	}
	if err := r.deps.Publisher.Publish(ctx, note); err != nil {
		r.log.Warnw("failed to publish contract event", "contract_id", c.ID, "type", note.Type, "error", err)
	}
}

func (r *Reconciler) archiveSigned(ctx context.Context, contractID uuid.UUID, documentID string) {
	if r.deps.Downloader == nil || r.deps.Archive == nil {
		return
	}
	err := func() error {
		signed, err := r.deps.Downloader.DownloadSignedDocument(ctx, documentID)
		if err != nil {
			return err
		}
		key := storage.SignedKey(contractID)
		if err := r.deps.Archive.Put(ctx, key, signed); err != nil {
			return err
		}
		return r.deps.Store.MergeCustomFields(ctx, contractID, map[string]any{types.FieldArchivedSignedPDFPath: key})
	}()
	if err != nil {
		r.log.Warnw("failed to archive signed document", "contract_id", contractID, "document_id", documentID, "error", err)
	}
}

func (r *Reconciler) appendHistory(ctx context.Context, c *types.Contract, ev *esign.Event, ref esign.Reference, stage types.Stage, resolvedBy string, out *Outcome, body []byte, now time.Time) {
	meta := map[string]any{
		"document_id":        ev.DocumentID,
		"external_reference": ev.ExternalID,
		"provider_status":    ev.Status,
		"payload_hash":       esign.PayloadHash(body),
		"payload":            ev.Raw,
	}
	if resolvedBy != "" {
		meta["stage_resolved_by"] = resolvedBy
	}
	if signed := ev.SignedRecipients(); len(signed) > 0 {
		emails := make([]string, 0, len(signed))
		for _, s := range signed {
			emails = append(emails, s.Email)
		}
		meta["signed_recipients"] = emails
	}

	err := r.deps.Store.AppendHistory(ctx, &types.HistoryEntry{
		ID:         uuid.New(),
		ContractID: c.ID,
		Event:      "webhook." + strings.ToLower(string(ev.Type)),
		Stage:      stage,
		Party:      partyOf(c, ev, stage),
		FromStatus: out.From,
		ToStatus:   out.To,
		Applied:    out.Applied,
		Metadata:   meta,
		CreatedAt:  now,
	})
	if err != nil {
		r.log.Errorw("failed to append webhook history", "contract_id", c.ID, "event", ev.Type, "error", err)
	}
}

// partyOf names who acted: the signing recipient when the event says, otherwise the stage's party.
func partyOf(c *types.Contract, ev *esign.Event, stage types.Stage) string {
	if signed := ev.SignedRecipients(); len(signed) > 0 {
		if strings.EqualFold(signed[0].Email, c.Data.Seller.Email) {
			return string(types.PartySeller)
		}
		return string(types.PartyBuyer)
	}
	if stage == "" {
		return ""
	}
	return string(stage.Party())
}

func (r *Reconciler) ignore(msg string, cause error, kv ...any) error {
	kv = append(kv, "reason", msg)
	if cause != nil {
		kv = append(kv, "error", cause)
	}
	r.log.Warnw("webhook acknowledged without changes", kv...)
	return &ParseError{Message: msg, Cause: cause}
}

// IsAcknowledged reports whether err should still be answered with success so the provider
// stops retrying.
func IsAcknowledged(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}
