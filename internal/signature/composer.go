// Package signature holds the signature-page catalog and appends signature pages to contract HTML.
package signature

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jonathan/contract-signer/internal/rendering"
	"github.com/jonathan/contract-signer/internal/templates"
	"github.com/jonathan/contract-signer/internal/types"
)

//go:embed fragments/*.html fragments/signature.css
var fragmentFiles embed.FS

// Marker is the paragraph placed before an appended signature page.
const Marker = "[SIGNATURES ON THE FOLLOWING PAGE]"

// PageClass marks the signature-page container in composed HTML.
const PageClass = "signature-page"

const styleID = "signature-page-css"

// DefaultLayout is used when a template names no layout and has no signature page of its own.
const DefaultLayout = types.LayoutTwoColumn

// Composer appends signature pages. The zero value reads the embedded fragments.
type Composer struct {
	// Files overrides the fragment files: <layout>.html and signature.css.
	Files fs.FS
}

// NewComposer returns a composer over the embedded fragments.
func NewComposer() *Composer {
	return &Composer{}
}

func (c *Composer) files() fs.FS {
	if c.Files != nil {
		return c.Files
	}
	sub, err := fs.Sub(fragmentFiles, "fragments")
	if err != nil {
		panic(fmt.Sprintf("signature fragments missing: %v", err))
	}
	return sub
}

// Fragment returns the raw signature-page fragment for a layout.
func (c *Composer) Fragment(layout types.Layout) (string, error) {
	return c.read(string(layout) + ".html")
}

// CSS returns the shared signature-page stylesheet.
func (c *Composer) CSS() (string, error) {
	return c.read("signature.css")
}

func (c *Composer) read(name string) (string, error) {
	data, err := fs.ReadFile(c.files(), name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &templates.ConfigError{Message: fmt.Sprintf("signature fragment %s is missing", name), Cause: err}
		}
		return "", &templates.ConfigError{Message: fmt.Sprintf("failed to read signature fragment %s", name), Cause: err}
	}
	return string(data), nil
}

// HasSignaturePage reports whether html already carries a signature page or the signatures-follow marker.
func HasSignaturePage(html string) bool {
	if strings.Contains(html, Marker) {
		return true
	}
	if !strings.Contains(html, PageClass) {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find("."+PageClass).Length() > 0
}

// Compose appends the layout's signature page to html, preceded by the marker paragraph,
// and injects the shared stylesheet into <head>. HTML that already has a signature page
// is returned unchanged. An empty layout selects DefaultLayout.
func (c *Composer) Compose(html string, layout types.Layout, data *types.ContractData, opts rendering.Options) (string, error) {
	if HasSignaturePage(html) {
		return html, nil
	}
	if layout == "" {
		layout = DefaultLayout
	}

	fragment, err := c.Fragment(layout)
	if err != nil {
		return "", err
	}
	css, err := c.CSS()
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", &rendering.TemplateError{Message: "failed to parse contract HTML", Cause: err}
	}

	if doc.Find("style#"+styleID).Length() == 0 {
		doc.Find("head").AppendHtml(fmt.Sprintf(`<style id="%s">%s</style>`, styleID, css))
	}

	page := rendering.Interpolate(fragment, data, opts)
	doc.Find("body").AppendHtml(fmt.Sprintf(`<p class="signatures-follow">%s</p>`, Marker) + page)

	out, err := doc.Html()
	if err != nil {
		return "", &rendering.TemplateError{Message: "failed to serialize composed HTML", Cause: err}
	}
	return out, nil
}
