package pdf

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/contract-signer/internal/rendering"
)

// Page geometry in inches.
const (
	PaperWidth   = 8.5
	PaperHeight  = 11.0
	MarginTop    = 0.5
	MarginSide   = 0.5
	MarginBottom = 1.0
)

// FooterOptions controls the running footer.
type FooterOptions struct {
	// BuyerInitials is base64 image data pre-filled into the right initials box.
	// Two-stage layouts leave the box empty for the provider to fill.
	BuyerInitials string
	TwoStage      bool
}

const footerBox = `display:inline-block;width:0.9in;height:0.35in;border:1px solid #000;vertical-align:middle;text-align:center;`

// FooterTemplate returns the print footer: seller initials on the left, "Page N of M" in the
// centre and buyer initials on the right. The print engine fills pageNumber and totalPages.
func FooterTemplate(opts FooterOptions) string {
	right := ""
	if !opts.TwoStage {
		if src := rendering.DataURI(opts.BuyerInitials); src != "" {
			right = fmt.Sprintf(`<img src="%s" style="max-width:0.85in;max-height:0.32in" />`, src)
		}
	}

	var sb strings.Builder
	sb.WriteString(`<div style="width:100%;margin:0 0.5in;font-family:Liberation Serif,Tinos,serif;font-size:8pt;display:flex;justify-content:space-between;align-items:center;-webkit-print-color-adjust:exact;">`)
	fmt.Fprintf(&sb, `<div><div style="font-size:6pt">Seller Initials</div><div class="seller-initials" style="%s"></div></div>`, footerBox)
	sb.WriteString(`<div>Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`)
	fmt.Fprintf(&sb, `<div><div style="font-size:6pt">Buyer Initials</div><div class="buyer-initials" style="%s">%s</div></div>`, footerBox, right)
	sb.WriteString(`</div>`)
	return sb.String()
}

// HeaderTemplate is empty; Chrome prints a default header unless one is given.
const HeaderTemplate = `<span></span>`

var timesPattern = regexp.MustCompile(`(?i)(["']?)Times New Roman(["']?)`)

// FallbackSerif replaces Times New Roman. Both faces are metrically compatible with it.
// The names are unquoted so the replacement is valid inside any attribute quoting.
const FallbackSerif = `Liberation Serif, Tinos`

// SubstituteFonts swaps every Times New Roman reference for a metrically compatible open font
// so that pagination does not depend on which fonts the host has installed.
func SubstituteFonts(html string) string {
	return timesPattern.ReplaceAllString(html, FallbackSerif)
}
