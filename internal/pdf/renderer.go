package pdf

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single render when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Options controls a single render.
type Options struct {
	Footer FooterOptions
}

// Result is a rendered document.
type Result struct {
	PDF   []byte
	Pages int
}

// Renderer turns composed HTML into a PDF.
type Renderer interface {
	Render(ctx context.Context, html string, opts Options) (*Result, error)
}

// ChromeConfig configures the headless Chrome renderer.
type ChromeConfig struct {
	// RemoteURL points at a running Chrome DevTools endpoint. When empty a local
	// Chrome process is launched for every render.
	RemoteURL string
	// ExecPath overrides the local Chrome binary.
	ExecPath string
	Timeout  time.Duration
}

// ChromeRenderer prints HTML with headless Chrome. Each render gets its own browser
// (or its own tab on a remote browser) and tears it down before returning.
type ChromeRenderer struct {
	cfg ChromeConfig
	log *zap.SugaredLogger
}

// NewChromeRenderer creates a renderer.
func NewChromeRenderer(cfg ChromeConfig, log *zap.SugaredLogger) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ChromeRenderer{cfg: cfg, log: log.Named("pdf")}
}

func (r *ChromeRenderer) allocator(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.RemoteURL != "" {
		return chromedp.NewRemoteAllocator(ctx, r.cfg.RemoteURL)
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if r.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ExecPath))
	}
	return chromedp.NewExecAllocator(ctx, opts...)
}

// Render prints html to US Letter with the running footer, then blanks the footer band
// on the final page. Engine failures are returned as *RenderError and are not retried.
func (r *ChromeRenderer) Render(ctx context.Context, html string, opts Options) (*Result, error) {
	start := time.Now()

	allocCtx, cancel := r.allocator(ctx)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, r.cfg.Timeout)
	defer cancel()

	var (
		raw        []byte
		fontsReady bool
	)
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, SubstituteFonts(html)).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		// Pagination depends on glyph metrics, so fonts must be loaded before printing.
		chromedp.Evaluate(`document.fonts.ready.then(() => true)`, &fontsReady,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams { return p.WithAwaitPromise(true) }),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPaperWidth(PaperWidth).
				WithPaperHeight(PaperHeight).
				WithMarginTop(MarginTop).
				WithMarginLeft(MarginSide).
				WithMarginRight(MarginSide).
				WithMarginBottom(MarginBottom).
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(HeaderTemplate).
				WithFooterTemplate(FooterTemplate(opts.Footer)).
				Do(ctx)
			if err != nil {
				return err
			}
			raw = data
			return nil
		}),
	)
	if err != nil {
		return nil, &RenderError{Message: "chrome failed to print PDF", Cause: err}
	}

	out, pages, err := BlankFinalFooter(raw, FooterBand)
	if err != nil {
		return nil, err
	}

	r.log.Debugw("rendered PDF", "pages", pages, "bytes", len(out), "duration", time.Since(start))
	return &Result{PDF: out, Pages: pages}, nil
}
