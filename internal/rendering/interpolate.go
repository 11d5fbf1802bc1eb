package rendering

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jonathan/contract-signer/internal/types"
)

// Options controls interpolation. The zero value renders with the current time and the default clause start.
type Options struct {
	// Now supplies the contract date when the data does not carry one.
	Now time.Time
	// ClauseStart numbers generated clauses when the template has no preceding section number.
	ClauseStart ClauseNumber
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) clauseStart() ClauseNumber {
	if o.ClauseStart.IsZero() {
		return DefaultClauseStart
	}
	return o.ClauseStart
}

var (
	tokenPattern       = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)
	conditionalPattern = regexp.MustCompile(`(?s)\{\{#if\s+([A-Za-z0-9_]+)\s*\}\}(.*?)\{\{/if\}\}`)
	anyTokenPattern    = regexp.MustCompile(`\{\{[^{}]*\}\}`)
)

// Interpolate merges data into template. Catalog tokens are always replaced, with "" for unset values.
// Tokens outside the catalog are left untouched.
func Interpolate(template string, data *types.ContractData, opts Options) string {
	if data == nil {
		data = &types.ContractData{}
	}

	// Clause numbering is anchored in the original text, before blocks are removed.
	start := ClauseStart(template, opts.clauseStart())
	values := Values(data, opts)
	values[TokenAIClauses] = RenderClauses(data.AIClauses, start)

	out := conditionalPattern.ReplaceAllStringFunc(template, func(block string) string {
		m := conditionalPattern.FindStringSubmatch(block)
		name := Token(m[1])
		if !catalogSet[name] {
			return block
		}
		if values[name] == "" {
			return ""
		}
		return m[2]
	})

	return tokenPattern.ReplaceAllStringFunc(out, func(tok string) string {
		m := tokenPattern.FindStringSubmatch(tok)
		name := Token(m[1])
		if !catalogSet[name] {
			return tok
		}
		return values[name]
	})
}

// StripUnfilled removes every remaining {{...}} token, catalog or not.
// It is meant for previews; final renders go through Interpolate alone.
func StripUnfilled(html string) string {
	html = conditionalPattern.ReplaceAllString(html, "")
	return anyTokenPattern.ReplaceAllString(html, "")
}

// Values computes the formatted value of every catalog token except ai_clauses.
// Text values are HTML-escaped; image tokens are complete <img> tags.
func Values(data *types.ContractData, opts Options) map[Token]string {
	p := data.Property
	buyer := data.EffectiveBuyer()

	contractDate := opts.now()
	if data.ContractDate != nil && !data.ContractDate.IsZero() {
		contractDate = *data.ContractDate
	}

	text := map[Token]string{
		TokenPropertyAddress:     p.Address,
		TokenPropertyCity:        p.City,
		TokenPropertyState:       p.State,
		TokenPropertyZip:         p.Zip,
		TokenFullPropertyAddress: JoinAddress(p.Address, p.City, p.State, p.Zip),
		TokenAPN:                 p.APN,

		TokenSellerName:    data.Seller.Name,
		TokenSellerEmail:   data.Seller.Email,
		TokenSellerPhone:   data.Seller.Phone,
		TokenSellerAddress: data.Seller.Address,

		TokenSeller2Name:  data.SecondSeller.Name,
		TokenSeller2Email: data.SecondSeller.Email,
		TokenSeller2Phone: data.SecondSeller.Phone,

		TokenCompanyName:       data.Company.Name,
		TokenCompanyEmail:      data.Company.Email,
		TokenCompanyPhone:      data.Company.Phone,
		TokenCompanySignerName: data.Company.SignerName,

		TokenBuyerName:  buyer.Name,
		TokenBuyerEmail: buyer.Email,
		TokenBuyerPhone: buyer.Phone,

		TokenAssigneeName:    data.Assignee.Name,
		TokenAssigneeEmail:   data.Assignee.Email,
		TokenAssigneePhone:   data.Assignee.Phone,
		TokenAssigneeAddress: data.Assignee.Address,

		TokenPurchasePrice: FormatAmount(data.PurchasePrice),
		TokenEarnestMoney:  FormatAmount(data.EarnestMoney),
		TokenAssignmentFee: FormatAmount(data.AssignmentFee),

		TokenEscrowAgentName:    data.Escrow.AgentName,
		TokenEscrowAgentAddress: data.Escrow.AgentAddress,
		TokenEscrowOfficer:      data.Escrow.Officer,
		TokenEscrowAgentEmail:   data.Escrow.AgentEmail,

		TokenCloseOfEscrow:    FormatDateText(data.CloseOfEscrow),
		TokenInspectionPeriod: data.InspectionPeriod,
		TokenPersonalProperty: data.PersonalProperty,

		TokenContractDate: FormatLongDate(contractDate),
	}

	values := make(map[Token]string, len(Catalog))
	for tok, v := range text {
		values[tok] = EscapeHTML(v)
	}
	values[TokenAdditionalTerms] = escapeMultiline(data.AdditionalTerms)

	for tok, on := range checkboxes(data) {
		if on {
			values[tok] = "checked"
		} else {
			values[tok] = ""
		}
	}

	values[TokenBuyerSignatureImg] = ImageTag(data.BuyerSignature, "Buyer signature", "signature-img")
	values[TokenBuyerInitialsImg] = ImageTag(data.BuyerInitials, "Buyer initials", "initials-img")
	values[TokenAIClauses] = ""

	return values
}

// checkboxes is the fixed mapping from closing-cost splits to checkbox tokens.
func checkboxes(data *types.ContractData) map[Token]bool {
	return map[Token]bool{
		TokenEscrowFeesSplitCheck:   data.EscrowFeesSplit == types.SplitShared,
		TokenEscrowFeesBuyerCheck:   data.EscrowFeesSplit == types.SplitBuyer,
		TokenTitlePolicySellerCheck: data.TitlePolicySplit == types.SplitSeller,
		TokenTitlePolicyBuyerCheck:  data.TitlePolicySplit == types.SplitBuyer,
		TokenHOAFeesSplitCheck:      data.HOAFeesSplit == types.SplitShared,
		TokenHOAFeesBuyerCheck:      data.HOAFeesSplit == types.SplitBuyer,
	}
}

// ImageTag returns an inline <img> for base64 raster data, or "" when data is empty.
// Data that already carries a data: URI prefix is used as is.
func ImageTag(data, alt, class string) string {
	src := DataURI(data)
	if src == "" {
		return ""
	}
	return fmt.Sprintf(`<img src="%s" alt="%s" class="%s" />`, src, EscapeHTML(alt), class)
}

// DataURI turns base64 PNG data into a data: URI. Empty input returns "".
func DataURI(data string) string {
	data = strings.TrimSpace(data)
	if data == "" {
		return ""
	}
	if strings.HasPrefix(data, "data:") {
		return data
	}
	return "data:image/png;base64," + data
}

// ValidateBlocks reports unterminated or nested conditional blocks, which Interpolate would leave in place.
func ValidateBlocks(template string) error {
	opens := strings.Count(template, "{{#if")
	closes := strings.Count(template, "{{/if}}")
	if opens != closes {
		return &TemplateError{Message: fmt.Sprintf("unbalanced conditional blocks: %d {{#if}} and %d {{/if}}", opens, closes)}
	}
	return nil
}
