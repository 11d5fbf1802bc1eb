package rendering

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// LongDateLayout is the long-form date used in contract bodies, e.g. "March 4, 2025".
const LongDateLayout = "January 2, 2006"

var numberPrinter = message.NewPrinter(language.AmericanEnglish)

// FormatAmount formats a whole amount with thousands separators and no currency symbol.
// A nil amount formats as "".
func FormatAmount(amount *int64) string {
	if amount == nil {
		return ""
	}
	return numberPrinter.Sprintf("%d", *amount)
}

// FormatLongDate formats t in long form. A zero time formats as "".
func FormatLongDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(LongDateLayout)
}

// dateInputLayouts are the layouts accepted for free-text date fields.
var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// FormatDateText reformats a date string into long form when it parses, otherwise returns it unchanged.
// Free text such as "30 days after acceptance" is kept verbatim.
func FormatDateText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, layout := range dateInputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(LongDateLayout)
		}
	}
	return s
}

// JoinAddress joins street, city, state and zip into one line, skipping empty parts.
func JoinAddress(street, city, state, zip string) string {
	stateZip := strings.TrimSpace(strings.TrimSpace(state) + " " + strings.TrimSpace(zip))
	var parts []string
	for _, p := range []string{strings.TrimSpace(street), strings.TrimSpace(city), stateZip} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
