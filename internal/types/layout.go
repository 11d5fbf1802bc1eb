package types

import (
	"fmt"
	"strings"
)

// Layout identifies a signature layout: the signature-page fragment and field-position table.
type Layout string

// Signature layouts
const (
	LayoutTwoColumn  Layout = "two-column"
	LayoutSellerOnly Layout = "seller-only"
	LayoutBuyerOnly  Layout = "buyer-only"
	LayoutThreeParty Layout = "three-party"
	LayoutTwoSeller  Layout = "two-seller"
)

// Layouts lists every signature layout.
var Layouts = []Layout{
	LayoutTwoColumn,
	LayoutSellerOnly,
	LayoutBuyerOnly,
	LayoutThreeParty,
	LayoutTwoSeller,
}

// ParseLayout parses a layout identifier. Underscores are accepted in place of hyphens.
func ParseLayout(s string) (Layout, error) {
	normalized := Layout(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, l := range Layouts {
		if l == normalized {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown signature layout: %q", s)
}

// TwoStage reports whether the layout needs two sequential provider documents.
func (l Layout) TwoStage() bool {
	return l == LayoutThreeParty || l == LayoutTwoSeller
}
