package templates

import "strings"

// jurisdictionCodes maps lower-cased jurisdiction names to their short codes.
var jurisdictionCodes = map[string]string{
	"alabama":              "AL",
	"alaska":               "AK",
	"arizona":              "AZ",
	"arkansas":             "AR",
	"california":           "CA",
	"colorado":             "CO",
	"connecticut":          "CT",
	"delaware":             "DE",
	"district of columbia": "DC",
	"florida":              "FL",
	"georgia":              "GA",
	"hawaii":               "HI",
	"idaho":                "ID",
	"illinois":             "IL",
	"indiana":              "IN",
	"iowa":                 "IA",
	"kansas":               "KS",
	"kentucky":             "KY",
	"louisiana":            "LA",
	"maine":                "ME",
	"maryland":             "MD",
	"massachusetts":        "MA",
	"michigan":             "MI",
	"minnesota":            "MN",
	"mississippi":          "MS",
	"missouri":             "MO",
	"montana":              "MT",
	"nebraska":             "NE",
	"nevada":               "NV",
	"new hampshire":        "NH",
	"new jersey":           "NJ",
	"new mexico":           "NM",
	"new york":             "NY",
	"north carolina":       "NC",
	"north dakota":         "ND",
	"ohio":                 "OH",
	"oklahoma":             "OK",
	"oregon":               "OR",
	"pennsylvania":         "PA",
	"rhode island":         "RI",
	"south carolina":       "SC",
	"south dakota":         "SD",
	"tennessee":            "TN",
	"texas":                "TX",
	"utah":                 "UT",
	"vermont":              "VT",
	"virginia":             "VA",
	"washington":           "WA",
	"west virginia":        "WV",
	"wisconsin":            "WI",
	"wyoming":              "WY",
}

var knownCodes = func() map[string]bool {
	m := make(map[string]bool, len(jurisdictionCodes))
	for _, code := range jurisdictionCodes {
		m[code] = true
	}
	return m
}()

// NormalizeJurisdiction returns the short code for a jurisdiction name or code.
// Unknown input is returned upper-cased so that lookups by code simply miss.
func NormalizeJurisdiction(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if code, ok := jurisdictionCodes[strings.ToLower(s)]; ok {
		return code
	}
	return strings.ToUpper(s)
}

// KnownJurisdiction reports whether s normalizes to a known code.
func KnownJurisdiction(s string) bool {
	return knownCodes[NormalizeJurisdiction(s)]
}
