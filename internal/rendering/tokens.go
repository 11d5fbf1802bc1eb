package rendering

// Token is a merge-field name usable as {{token}} in a contract template.
// Renaming a token breaks every template that uses it.
type Token string

// Field-token catalog
const (
	TokenPropertyAddress     Token = "property_address"
	TokenPropertyCity        Token = "property_city"
	TokenPropertyState       Token = "property_state"
	TokenPropertyZip         Token = "property_zip"
	TokenFullPropertyAddress Token = "full_property_address"
	TokenAPN                 Token = "apn"

	TokenSellerName    Token = "seller_name"
	TokenSellerEmail   Token = "seller_email"
	TokenSellerPhone   Token = "seller_phone"
	TokenSellerAddress Token = "seller_address"

	TokenSeller2Name  Token = "seller2_name"
	TokenSeller2Email Token = "seller2_email"
	TokenSeller2Phone Token = "seller2_phone"

	TokenCompanyName       Token = "company_name"
	TokenCompanyEmail      Token = "company_email"
	TokenCompanyPhone      Token = "company_phone"
	TokenCompanySignerName Token = "company_signer_name"

	TokenBuyerName  Token = "buyer_name"
	TokenBuyerEmail Token = "buyer_email"
	TokenBuyerPhone Token = "buyer_phone"

	TokenAssigneeName    Token = "assignee_name"
	TokenAssigneeEmail   Token = "assignee_email"
	TokenAssigneePhone   Token = "assignee_phone"
	TokenAssigneeAddress Token = "assignee_address"

	TokenPurchasePrice Token = "purchase_price"
	TokenEarnestMoney  Token = "earnest_money"
	TokenAssignmentFee Token = "assignment_fee"

	TokenEscrowAgentName    Token = "escrow_agent_name"
	TokenEscrowAgentAddress Token = "escrow_agent_address"
	TokenEscrowOfficer      Token = "escrow_officer"
	TokenEscrowAgentEmail   Token = "escrow_agent_email"

	TokenCloseOfEscrow    Token = "close_of_escrow"
	TokenInspectionPeriod Token = "inspection_period"
	TokenPersonalProperty Token = "personal_property"
	TokenAdditionalTerms  Token = "additional_terms"

	TokenEscrowFeesSplitCheck   Token = "escrow_fees_split_check"
	TokenEscrowFeesBuyerCheck   Token = "escrow_fees_buyer_check"
	TokenTitlePolicySellerCheck Token = "title_policy_seller_check"
	TokenTitlePolicyBuyerCheck  Token = "title_policy_buyer_check"
	TokenHOAFeesSplitCheck      Token = "hoa_fees_split_check"
	TokenHOAFeesBuyerCheck      Token = "hoa_fees_buyer_check"

	TokenAIClauses    Token = "ai_clauses"
	TokenContractDate Token = "contract_date"

	TokenBuyerSignatureImg Token = "buyer_signature_img"
	TokenBuyerInitialsImg  Token = "buyer_initials_img"
)

// Catalog lists every token the interpolator fills.
var Catalog = []Token{
	TokenPropertyAddress, TokenPropertyCity, TokenPropertyState, TokenPropertyZip,
	TokenFullPropertyAddress, TokenAPN,
	TokenSellerName, TokenSellerEmail, TokenSellerPhone, TokenSellerAddress,
	TokenSeller2Name, TokenSeller2Email, TokenSeller2Phone,
	TokenCompanyName, TokenCompanyEmail, TokenCompanyPhone, TokenCompanySignerName,
	TokenBuyerName, TokenBuyerEmail, TokenBuyerPhone,
	TokenAssigneeName, TokenAssigneeEmail, TokenAssigneePhone, TokenAssigneeAddress,
	TokenPurchasePrice, TokenEarnestMoney, TokenAssignmentFee,
	TokenEscrowAgentName, TokenEscrowAgentAddress, TokenEscrowOfficer, TokenEscrowAgentEmail,
	TokenCloseOfEscrow, TokenInspectionPeriod, TokenPersonalProperty, TokenAdditionalTerms,
	TokenEscrowFeesSplitCheck, TokenEscrowFeesBuyerCheck,
	TokenTitlePolicySellerCheck, TokenTitlePolicyBuyerCheck,
	TokenHOAFeesSplitCheck, TokenHOAFeesBuyerCheck,
	TokenAIClauses, TokenContractDate,
	TokenBuyerSignatureImg, TokenBuyerInitialsImg,
}

var catalogSet = func() map[Token]bool {
	m := make(map[Token]bool, len(Catalog))
	for _, t := range Catalog {
		m[t] = true
	}
	return m
}()

// Known reports whether name is a catalog token.
func Known(name string) bool {
	return catalogSet[Token(name)]
}

// Placeholder returns the template form of the token, e.g. {{seller_name}}.
func (t Token) Placeholder() string {
	return "{{" + string(t) + "}}"
}
