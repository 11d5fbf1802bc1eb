// Package types provides type definitions for structured data used throughout the contract signing system.
package types

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// CostSplit is the value of one of the closing-cost checkbox groups.
// The zero value means the group is unset.
type CostSplit string

// Closing-cost split values. Not every group accepts every value:
// escrow fees and HOA fees take split|buyer, the title policy takes seller|buyer.
const (
	SplitUnset  CostSplit = ""
	SplitShared CostSplit = "split"
	SplitBuyer  CostSplit = "buyer"
	SplitSeller CostSplit = "seller"
)

// Identity is a named party with contact details.
type Identity struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// Company is the wholesaler identity that issues the contract.
type Company struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty"`
	SignerName string `json:"signer_name,omitempty"`
}

// Property is the subject property of the contract.
type Property struct {
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	APN     string `json:"apn,omitempty"`
}

// Escrow is the escrow or title company handling closing.
type Escrow struct {
	AgentName    string `json:"agent_name,omitempty"`
	AgentAddress string `json:"agent_address,omitempty"`
	Officer      string `json:"officer,omitempty"`
	AgentEmail   string `json:"agent_email,omitempty" validate:"omitempty,email"`
}

// AIClause is an additional clause appended to the contract body.
// EditedBody, when non-empty, replaces Body in the rendered document.
type AIClause struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	EditedBody string `json:"edited_body,omitempty"`
}

// Text returns the body that should be rendered for the clause.
func (c AIClause) Text() string {
	if c.EditedBody != "" {
		return c.EditedBody
	}
	return c.Body
}

// ContractData is the merge record passed into rendering.
// Prices are whole numbers without a currency symbol; nil means unset.
type ContractData struct {
	Property     Property `json:"property"`
	Seller       Identity `json:"seller"`
	SecondSeller Identity `json:"second_seller"`
	Company      Company  `json:"company"`
	Buyer        Identity `json:"buyer"`
	Assignee     Identity `json:"assignee"`
	Escrow       Escrow   `json:"escrow"`

	PurchasePrice *int64 `json:"purchase_price,omitempty" validate:"omitempty,gte=0"`
	EarnestMoney  *int64 `json:"earnest_money,omitempty" validate:"omitempty,gte=0"`
	AssignmentFee *int64 `json:"assignment_fee,omitempty" validate:"omitempty,gte=0"`

	CloseOfEscrow    string `json:"close_of_escrow,omitempty"`
	InspectionPeriod string `json:"inspection_period,omitempty"`
	PersonalProperty string `json:"personal_property,omitempty"`
	AdditionalTerms  string `json:"additional_terms,omitempty"`

	EscrowFeesSplit  CostSplit `json:"escrow_fees_split,omitempty" validate:"omitempty,oneof=split buyer"`
	TitlePolicySplit CostSplit `json:"title_policy_split,omitempty" validate:"omitempty,oneof=seller buyer"`
	HOAFeesSplit     CostSplit `json:"hoa_fees_split,omitempty" validate:"omitempty,oneof=split buyer"`

	// Base64 raster images for the wholesaler's pre-filled marks.
	BuyerSignature string `json:"buyer_signature,omitempty"`
	BuyerInitials  string `json:"buyer_initials,omitempty"`

	AIClauses    []AIClause `json:"ai_clauses,omitempty"`
	ContractDate *time.Time `json:"contract_date,omitempty"`
}

// Validate checks field formats. Presence of signer identities is enforced by the send workflow.
func (d *ContractData) Validate() error {
	validate := validator.New()
	return validate.Struct(d)
}

// EffectiveBuyer returns the buyer identity, falling back to the issuing company.
func (d *ContractData) EffectiveBuyer() Identity {
	b := d.Buyer
	if b.Name == "" {
		b.Name = d.Company.Name
	}
	if b.Email == "" {
		b.Email = d.Company.Email
	}
	if b.Phone == "" {
		b.Phone = d.Company.Phone
	}
	return b
}
