package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/contract-signer/internal/types"
)

const contractColumns = `id, company_id, kind, jurisdiction, template_id, status, data, custom_fields,
	sent_at, viewed_at, completed_at, created_at, updated_at`

// CreateContract inserts a contract and fills its id and timestamps.
func (db *DB) CreateContract(ctx context.Context, c *types.Contract) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal contract data: %w", err)
	}
	custom, err := marshalFields(c.CustomFields)
	if err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = types.StatusDraft
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO contracts (id, company_id, kind, jurisdiction, template_id, status, data, custom_fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb)
		 RETURNING created_at, updated_at`,
		c.ID, c.CompanyID, string(c.Kind), c.Jurisdiction, c.TemplateID, string(c.Status), string(data), custom,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

// GetContract returns the contract, or nil if it does not exist.
func (db *DB) GetContract(ctx context.Context, id uuid.UUID) (*types.Contract, error) {
	var (
		c            types.Contract
		kind, status string
		data, custom []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id,
	).Scan(&c.ID, &c.CompanyID, &kind, &c.Jurisdiction, &c.TemplateID, &status, &data, &custom,
		&c.SentAt, &c.ViewedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	c.Kind = types.Kind(kind)
	c.Status = types.Status(status)
	if err := json.Unmarshal(data, &c.Data); err != nil {
		return nil, fmt.Errorf("failed to decode contract data: %w", err)
	}
	if err := json.Unmarshal(custom, &c.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom fields: %w", err)
	}
	if c.CustomFields == nil {
		c.CustomFields = map[string]any{}
	}
	return &c, nil
}

// TransitionStatus writes the transition only while the contract status is one of t.From.
// It reports whether a row changed.
func (db *DB) TransitionStatus(ctx context.Context, t types.Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition to %s has no source statuses", t.To)
	}
	custom, err := marshalFields(t.CustomFields)
	if err != nil {
		return false, err
	}
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE contracts SET
			status = $2,
			sent_at = COALESCE($3::timestamptz, sent_at),
			viewed_at = COALESCE($4::timestamptz, viewed_at),
			completed_at = COALESCE($5::timestamptz, completed_at),
			custom_fields = custom_fields || $6::jsonb,
			updated_at = NOW()
		 WHERE id = $1 AND status = ANY($7::text[])`,
		t.ContractID, string(t.To), t.SentAt, t.ViewedAt, t.CompletedAt, custom, from,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update contract status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MergeCustomFields merges fields into the contract's custom-fields bag. Top-level keys in
// fields replace existing ones.
func (db *DB) MergeCustomFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	custom, err := marshalFields(fields)
	if err != nil {
		return err
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE contracts SET custom_fields = custom_fields || $2::jsonb, updated_at = NOW() WHERE id = $1`,
		id, custom,
	)
	if err != nil {
		return fmt.Errorf("failed to update custom fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("contract %s not found", id)
	}
	return nil
}

// AppendHistory inserts an audit entry. It never touches the contract row.
func (db *DB) AppendHistory(ctx context.Context, e *types.HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalFields(e.Metadata)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO contract_history (id, contract_id, event, stage, party, from_status, to_status, applied, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ContractID, e.Event, string(e.Stage), e.Party, string(e.FromStatus), string(e.ToStatus),
		e.Applied, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append contract history: %w", err)
	}
	return nil
}

// ListHistory returns a contract's audit entries, oldest first.
func (db *DB) ListHistory(ctx context.Context, contractID uuid.UUID) ([]types.HistoryEntry, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, contract_id, event, stage, party, from_status, to_status, applied, metadata, created_at
		 FROM contract_history WHERE contract_id = $1 ORDER BY created_at, id`,
		contractID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract history: %w", err)
	}
	defer rows.Close()

	var out []types.HistoryEntry
	for rows.Next() {
		var (
			e               types.HistoryEntry
			stage, from, to string
			meta            []byte
		)
		if err := rows.Scan(&e.ID, &e.ContractID, &e.Event, &stage, &e.Party, &from, &to, &e.Applied, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract history: %w", err)
		}
		e.Stage, e.FromStatus, e.ToStatus = types.Stage(stage), types.Status(from), types.Status(to)
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode history metadata: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	return string(b), nil
}
