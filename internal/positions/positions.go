// Package positions maps a signature layout and page count to provider field rectangles.
package positions

import (
	"fmt"

	"github.com/jonathan/contract-signer/internal/types"
)

// FieldKind is the type of a provider field.
type FieldKind string

// Field kinds
const (
	FieldSignature FieldKind = "signature"
	FieldInitials  FieldKind = "initials"
	FieldDate      FieldKind = "date"
)

// Position is a field rectangle on a 1-based page. Coordinates are percentages of the page
// with the origin at the top-left.
type Position struct {
	Page   int         `json:"page"`
	X      float64     `json:"x"`
	Y      float64     `json:"y"`
	Width  float64     `json:"width"`
	Height float64     `json:"height"`
	Party  types.Party `json:"party"`
	Kind   FieldKind   `json:"kind"`
}

// RangeError reports a rectangle outside the page.
type RangeError struct {
	Layout   types.Layout
	Position Position
}

func (e *RangeError) Error() string {
	p := e.Position
	return fmt.Sprintf("layout %s: %s field for %s on page %d out of range (x=%.2f y=%.2f w=%.2f h=%.2f)",
		e.Layout, p.Kind, p.Party, p.Page, p.X, p.Y, p.Width, p.Height)
}

// rect is a page-relative rectangle in a layout table.
type rect struct {
	X, Y, Width, Height float64
}

// Footer initials boxes sit inside the bottom 1in band.
var (
	sellerInitials = rect{X: 6, Y: 92.5, Width: 12, Height: 4}
	buyerInitials  = rect{X: 82, Y: 92.5, Width: 12, Height: 4}
)

const (
	dateWidth  = 20
	dateHeight = 4
	sigHeight  = 6
)

type signatureSpec struct {
	party     types.Party
	signature rect
	// dateBelow places the date row under the signature instead of above it.
	dateBelow bool
}

type layoutSpec struct {
	initials   []types.Party
	signatures []signatureSpec
}

var layouts = map[types.Layout]layoutSpec{
	types.LayoutTwoColumn: {
		initials: []types.Party{types.PartySeller},
		signatures: []signatureSpec{
			{party: types.PartySeller, signature: rect{X: 6, Y: 30, Width: 38, Height: sigHeight}},
		},
	},
	types.LayoutSellerOnly: {
		initials: []types.Party{types.PartySeller},
		signatures: []signatureSpec{
			{party: types.PartySeller, signature: rect{X: 6, Y: 30, Width: 50, Height: sigHeight}},
		},
	},
	types.LayoutBuyerOnly: {
		initials: []types.Party{types.PartySeller},
		signatures: []signatureSpec{
			{party: types.PartyBuyer, signature: rect{X: 6, Y: 30, Width: 50, Height: sigHeight}, dateBelow: true},
		},
	},
	types.LayoutThreeParty: {
		initials: []types.Party{types.PartySeller, types.PartyBuyer},
		signatures: []signatureSpec{
			{party: types.PartySeller, signature: rect{X: 6, Y: 22, Width: 50, Height: sigHeight}, dateBelow: true},
			{party: types.PartyBuyer, signature: rect{X: 6, Y: 62, Width: 50, Height: sigHeight}, dateBelow: true},
		},
	},
	types.LayoutTwoSeller: {
		initials: []types.Party{types.PartySeller, types.PartyBuyer},
		signatures: []signatureSpec{
			{party: types.PartySeller, signature: rect{X: 6, Y: 22, Width: 50, Height: sigHeight}, dateBelow: true},
			{party: types.PartyBuyer, signature: rect{X: 6, Y: 46, Width: 50, Height: sigHeight}, dateBelow: true},
		},
	},
}

// For returns every field rectangle for a layout and total page count. Initials go on
// pages 1..totalPages-1; signatures and dates go on the final page.
func For(layout types.Layout, totalPages int) ([]Position, error) {
	spec, ok := layouts[layout]
	if !ok {
		return nil, fmt.Errorf("unknown signature layout: %q", layout)
	}
	if totalPages < 1 {
		return nil, fmt.Errorf("total pages must be at least 1, got %d", totalPages)
	}

	var out []Position
	for page := 1; page < totalPages; page++ {
		for _, party := range spec.initials {
			r := sellerInitials
			if party == types.PartyBuyer {
				r = buyerInitials
			}
			out = append(out, at(page, r, party, FieldInitials))
		}
	}

	for _, s := range spec.signatures {
		date := rect{X: s.signature.X, Width: dateWidth, Height: dateHeight}
		if s.dateBelow {
			date.Y = s.signature.Y + s.signature.Height + 2
		} else {
			date.Y = s.signature.Y - dateHeight - 2
		}
		out = append(out,
			at(totalPages, s.signature, s.party, FieldSignature),
			at(totalPages, date, s.party, FieldDate),
		)
	}

	for _, p := range out {
		if err := Validate(p); err != nil {
			return nil, &RangeError{Layout: layout, Position: p}
		}
	}
	return out, nil
}

// ForStage returns the subset of For that belongs to the party signing in stage.
// Single-stage documents get every position.
func ForStage(layout types.Layout, totalPages int, stage types.Stage) ([]Position, error) {
	all, err := For(layout, totalPages)
	if err != nil {
		return nil, err
	}
	if !layout.TwoStage() || stage == types.StageSingle || stage == "" {
		return all, nil
	}
	party := stage.Party()
	var out []Position
	for _, p := range all {
		if p.Party == party {
			out = append(out, p)
		}
	}
	return out, nil
}

// Parties returns the parties that own at least one position, seller first.
func Parties(ps []Position) []types.Party {
	var seller, buyer bool
	for _, p := range ps {
		switch p.Party {
		case types.PartySeller:
			seller = true
		case types.PartyBuyer:
			buyer = true
		}
	}
	var out []types.Party
	if seller {
		out = append(out, types.PartySeller)
	}
	if buyer {
		out = append(out, types.PartyBuyer)
	}
	return out
}

// Validate checks that p lies within the page.
func Validate(p Position) error {
	if p.Page < 1 || p.Width <= 0 || p.Height <= 0 || p.X < 0 || p.Y < 0 || p.X+p.Width > 100 || p.Y+p.Height > 100 {
		return &RangeError{Position: p}
	}
	return nil
}

func at(page int, r rect, party types.Party, kind FieldKind) Position {
	return Position{Page: page, X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, Party: party, Kind: kind}
}
