package db

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-signer/internal/types"
)

// MemoryStore is an in-process store with the same semantics as DB. It backs the
// development server and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]*types.Contract
	templates map[uuid.UUID]*types.Template
	history   []types.HistoryEntry
	now       func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts: make(map[uuid.UUID]*types.Contract),
		templates: make(map[uuid.UUID]*types.Template),
		now:       time.Now,
	}
}

// CreateContract stores a copy of c and fills its id and timestamps.
func (s *MemoryStore) CreateContract(_ context.Context, c *types.Contract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = types.StatusDraft
	}
	if c.CustomFields == nil {
		c.CustomFields = map[string]any{}
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	cp, err := cloneContract(c)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contracts[c.ID]; ok {
		return fmt.Errorf("contract %s already exists", c.ID)
	}
	s.contracts[c.ID] = cp
	return nil
}

// GetContract returns a copy of the contract, or nil if it does not exist.
func (s *MemoryStore) GetContract(_ context.Context, id uuid.UUID) (*types.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil, nil
	}
	return cloneContract(c)
}

// TransitionStatus applies t while the status is one of t.From.
func (s *MemoryStore) TransitionStatus(_ context.Context, t types.Transition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition to %s has no source statuses", t.To)
	}
	fields, err := cloneFields(t.CustomFields)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[t.ContractID]
	if !ok || !slices.Contains(t.From, c.Status) {
		return false, nil
	}
	c.Status = t.To
	if t.SentAt != nil {
		c.SentAt = t.SentAt
	}
	if t.ViewedAt != nil {
		c.ViewedAt = t.ViewedAt
	}
	if t.CompletedAt != nil {
		c.CompletedAt = t.CompletedAt
	}
	for k, v := range fields {
		c.CustomFields[k] = v
	}
	c.UpdatedAt = s.now().UTC()
	return true, nil
}

// MergeCustomFields merges fields into the contract's custom-fields bag.
func (s *MemoryStore) MergeCustomFields(_ context.Context, id uuid.UUID, fields map[string]any) error {
	cp, err := cloneFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return fmt.Errorf("contract %s not found", id)
	}
	for k, v := range cp {
		c.CustomFields[k] = v
	}
	c.UpdatedAt = s.now().UTC()
	return nil
}

// AppendHistory records an audit entry. Entries with an id already stored are ignored.
func (s *MemoryStore) AppendHistory(_ context.Context, e *types.HistoryEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	meta, err := cloneFields(e.Metadata)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.ID == e.ID {
			return nil
		}
	}
	entry := *e
	entry.Metadata = meta
	s.history = append(s.history, entry)
	return nil
}

// ListHistory returns a contract's audit entries, oldest first.
func (s *MemoryStore) ListHistory(_ context.Context, contractID uuid.UUID) ([]types.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.HistoryEntry
	for _, h := range s.history {
		if h.ContractID == contractID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateTemplate stores a copy of t.
func (s *MemoryStore) CreateTemplate(_ context.Context, t *types.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	s.mu.Lock()
	s.templates[t.ID] = &cp
	s.mu.Unlock()
	return nil
}

// GetTemplate returns a template by id, or nil.
func (s *MemoryStore) GetTemplate(_ context.Context, id uuid.UUID) (*types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// GetJurisdictionTemplate returns the shared template for a kind and jurisdiction code, or nil.
func (s *MemoryStore) GetJurisdictionTemplate(_ context.Context, kind types.Kind, code string) (*types.Template, error) {
	return s.findShared(func(t *types.Template) bool {
		return t.Kind == kind && t.Scope == types.ScopeJurisdiction && t.Jurisdiction == code
	}), nil
}

// GetGeneralTemplate returns the jurisdiction-independent shared template for a kind, or nil.
func (s *MemoryStore) GetGeneralTemplate(_ context.Context, kind types.Kind) (*types.Template, error) {
	return s.findShared(func(t *types.Template) bool {
		return t.Kind == kind && t.Scope == types.ScopeJurisdictionGeneral
	}), nil
}

func (s *MemoryStore) findShared(match func(*types.Template) bool) *types.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.templates {
		if t.CompanyID == nil && match(t) {
			cp := *t
			return &cp
		}
	}
	return nil
}

// cloneContract deep-copies a contract through JSON so callers never share the stored maps.
// Custom-field values come back in their JSON-decoded form, as they do from PostgreSQL.
func cloneContract(c *types.Contract) (*types.Contract, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to copy contract: %w", err)
	}
	var out types.Contract
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to copy contract: %w", err)
	}
	if out.CustomFields == nil {
		out.CustomFields = map[string]any{}
	}
	return &out, nil
}

func cloneFields(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to copy custom fields: %w", err)
	}
	return out, nil
}
