package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// FooterBand is the height of the bottom margin in PDF points.
const FooterBand = MarginBottom * 72

func readContext(pdf []byte) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return nil, &RenderError{Message: "failed to parse rendered PDF", Cause: err}
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, &RenderError{Message: "failed to count PDF pages", Cause: err}
	}
	return ctx, nil
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	ctx, err := readContext(pdf)
	if err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}

// BlankFinalFooter paints an opaque white rectangle over the bottom band of the last page
// and returns the new PDF with its page count. Earlier pages are left untouched.
func BlankFinalFooter(pdf []byte, band float64) ([]byte, int, error) {
	ctx, err := readContext(pdf)
	if err != nil {
		return nil, 0, err
	}
	last := ctx.PageCount
	if last < 1 {
		return nil, 0, &RenderError{Message: "rendered PDF has no pages"}
	}

	pageDict, _, inherited, err := ctx.PageDict(last, false)
	if err != nil || pageDict == nil {
		return nil, 0, &RenderError{Message: fmt.Sprintf("failed to load page %d", last), Cause: err}
	}
	if inherited == nil || inherited.MediaBox == nil {
		return nil, 0, &RenderError{Message: fmt.Sprintf("page %d has no media box", last)}
	}
	box := inherited.MediaBox

	// Existing content is wrapped in q/Q so its graphics state cannot leak into the rectangle.
	open, err := newContentStream(ctx, "q\n")
	if err != nil {
		return nil, 0, err
	}
	cover := fmt.Sprintf("Q\nq 1 1 1 rg %.2f %.2f %.2f %.2f re f Q\n", box.LL.X, box.LL.Y, box.Width(), band)
	closeRef, err := newContentStream(ctx, cover)
	if err != nil {
		return nil, 0, err
	}

	contents := types.Array{*open}
	if obj, found := pageDict.Find("Contents"); found {
		switch c := obj.(type) {
		case types.IndirectRef:
			contents = append(contents, c)
		case types.Array:
			contents = append(contents, c...)
		default:
			return nil, 0, &RenderError{Message: fmt.Sprintf("page %d has unsupported contents %T", last, obj)}
		}
	}
	contents = append(contents, *closeRef)
	pageDict["Contents"] = contents

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, 0, &RenderError{Message: "failed to write PDF", Cause: err}
	}
	return out.Bytes(), last, nil
}

func newContentStream(ctx *model.Context, content string) (*types.IndirectRef, error) {
	sd, err := ctx.NewStreamDictForBuf([]byte(content))
	if err != nil {
		return nil, &RenderError{Message: "failed to create content stream", Cause: err}
	}
	if err := sd.Encode(); err != nil {
		return nil, &RenderError{Message: "failed to encode content stream", Cause: err}
	}
	ref, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, &RenderError{Message: "failed to add content stream", Cause: err}
	}
	return ref, nil
}
