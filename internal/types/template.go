package types

import "github.com/google/uuid"

// TemplateScope says where a resolved template came from.
type TemplateScope string

// Template scopes, in resolution priority order.
const (
	ScopeCompany             TemplateScope = "company"
	ScopeJurisdiction        TemplateScope = "jurisdiction"
	ScopeJurisdictionGeneral TemplateScope = "jurisdiction_general"
	ScopeBuiltIn             TemplateScope = "built_in"
)

// Template is a stored contract template. Layout is empty when the template carries its own signature page.
type Template struct {
	ID           uuid.UUID     `json:"id"`
	CompanyID    *uuid.UUID    `json:"company_id,omitempty"`
	Kind         Kind          `json:"kind"`
	Scope        TemplateScope `json:"scope"`
	Jurisdiction string        `json:"jurisdiction,omitempty"`
	Name         string        `json:"name,omitempty"`
	HTML         string        `json:"html"`
	Layout       Layout        `json:"signature_layout,omitempty"`
	Customized   bool          `json:"is_customized"`
	// ClauseStart overrides the first generated clause number, e.g. "12.6".
	ClauseStart string `json:"clause_start,omitempty"`
}
