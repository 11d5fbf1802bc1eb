package templates

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/types"
	"go.uber.org/zap"
)

//go:embed builtin/*.html
var builtinFiles embed.FS

// BuiltinFS returns the built-in template files, one <kind>.html per document kind.
func BuiltinFS() fs.FS {
	sub, err := fs.Sub(builtinFiles, "builtin")
	if err != nil {
		panic(fmt.Sprintf("built-in templates missing: %v", err))
	}
	return sub
}

// Store reads stored templates. Lookups return nil, nil when nothing matches.
type Store interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*types.Template, error)
	GetJurisdictionTemplate(ctx context.Context, kind types.Kind, code string) (*types.Template, error)
	GetGeneralTemplate(ctx context.Context, kind types.Kind) (*types.Template, error)
}

// Request selects a template.
type Request struct {
	Kind         types.Kind
	Jurisdiction string
	CompanyID    uuid.UUID
	TemplateID   *uuid.UUID
}

// Resolved is the template text chosen for a document.
// Layout is empty when the template is self-contained.
type Resolved struct {
	HTML        string
	Layout      types.Layout
	Scope       types.TemplateScope
	TemplateID  *uuid.UUID
	ClauseStart string
}

// Resolver picks the template for a document: company template, then jurisdiction override,
// then jurisdiction-general, then the built-in file.
type Resolver struct {
	store Store
	files fs.FS
	log   *zap.SugaredLogger
}

// NewResolver creates a resolver. store may be nil, in which case only built-in files are used.
// files defaults to the embedded built-in templates.
func NewResolver(store Store, files fs.FS, log *zap.SugaredLogger) *Resolver {
	if files == nil {
		files = BuiltinFS()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{store: store, files: files, log: log.Named("templates")}
}

// Resolve returns the first matching template. Store failures are returned as is;
// a missing built-in file is a *ConfigError.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Resolved, error) {
	if r.store != nil {
		resolved, err := r.resolveStored(ctx, req)
		if err != nil || resolved != nil {
			return resolved, err
		}
	}
	return r.builtin(req.Kind)
}

func (r *Resolver) resolveStored(ctx context.Context, req Request) (*Resolved, error) {
	if req.TemplateID != nil {
		t, err := r.store.GetTemplate(ctx, *req.TemplateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load company template %s: %w", req.TemplateID, err)
		}
		switch {
		case t == nil:
			r.log.Warnw("company template not found, falling back", "template_id", req.TemplateID)
		case t.CompanyID != nil && *t.CompanyID != req.CompanyID:
			r.log.Warnw("company template belongs to another company, ignoring",
				"template_id", req.TemplateID, "company_id", req.CompanyID)
		case hasBody(t):
			return fromTemplate(t, types.ScopeCompany), nil
		}
	}

	code := NormalizeJurisdiction(req.Jurisdiction)
	if code != "" {
		t, err := r.store.GetJurisdictionTemplate(ctx, req.Kind, code)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s template for %s: %w", req.Kind, code, err)
		}
		if t != nil && t.Customized && hasBody(t) {
			return fromTemplate(t, types.ScopeJurisdiction), nil
		}
	}

	t, err := r.store.GetGeneralTemplate(ctx, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load general %s template: %w", req.Kind, err)
	}
	if t != nil && hasBody(t) {
		return fromTemplate(t, types.ScopeJurisdictionGeneral), nil
	}
	return nil, nil
}

func (r *Resolver) builtin(kind types.Kind) (*Resolved, error) {
	name := string(kind) + ".html"
	data, err := fs.ReadFile(r.files, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigError{Message: fmt.Sprintf("built-in template %s is missing", name), Cause: err}
		}
		return nil, &ConfigError{Message: fmt.Sprintf("failed to read built-in template %s", name), Cause: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, &ConfigError{Message: fmt.Sprintf("built-in template %s is empty", name)}
	}
	return &Resolved{HTML: string(data), Scope: types.ScopeBuiltIn}, nil
}

func hasBody(t *types.Template) bool {
	return strings.TrimSpace(t.HTML) != ""
}

func fromTemplate(t *types.Template, scope types.TemplateScope) *Resolved {
	id := t.ID
	return &Resolved{
		HTML:        t.HTML,
		Layout:      t.Layout,
		Scope:       scope,
		TemplateID:  &id,
		ClauseStart: t.ClauseStart,
	}
}
