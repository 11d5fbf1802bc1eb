package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-signer/internal/types"
)

const templateColumns = `id, company_id, kind, scope, jurisdiction, name, html, signature_layout, is_customized, clause_start`

// CreateTemplate inserts a template and fills its id.
func (db *DB) CreateTemplate(ctx context.Context, t *types.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO templates (`+templateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.CompanyID, string(t.Kind), string(t.Scope), t.Jurisdiction, t.Name, t.HTML,
		string(t.Layout), t.Customized, t.ClauseStart,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	return nil
}

// GetTemplate returns a template by id, or nil if it does not exist.
func (db *DB) GetTemplate(ctx context.Context, id uuid.UUID) (*types.Template, error) {
	return db.queryTemplate(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
}

// GetJurisdictionTemplate returns the shared template for a kind and jurisdiction code.
func (db *DB) GetJurisdictionTemplate(ctx context.Context, kind types.Kind, code string) (*types.Template, error) {
	return db.queryTemplate(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE kind = $1 AND jurisdiction = $2 AND company_id IS NULL AND scope = $3
		 ORDER BY updated_at DESC LIMIT 1`,
		string(kind), code, string(types.ScopeJurisdiction))
}

// GetGeneralTemplate returns the jurisdiction-independent shared template for a kind.
func (db *DB) GetGeneralTemplate(ctx context.Context, kind types.Kind) (*types.Template, error) {
	return db.queryTemplate(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE kind = $1 AND company_id IS NULL AND scope = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		string(kind), string(types.ScopeJurisdictionGeneral))
}

func (db *DB) queryTemplate(ctx context.Context, sql string, args ...any) (*types.Template, error) {
	var (
		t                   types.Template
		kind, scope, layout string
	)
	err := db.pool.QueryRow(ctx, sql, args...).Scan(&t.ID, &t.CompanyID, &kind, &scope, &t.Jurisdiction,
		&t.Name, &t.HTML, &layout, &t.Customized, &t.ClauseStart)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	t.Kind, t.Scope, t.Layout = types.Kind(kind), types.TemplateScope(scope), types.Layout(layout)
	return &t, nil
}
