package rendering

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/contract-signer/internal/types"
)

// ClauseNumber is a major.minor section number such as 8.3.
type ClauseNumber struct {
	Major int
	Minor int
}

// DefaultClauseStart numbers generated clauses when no section number precedes the clause placeholder.
var DefaultClauseStart = ClauseNumber{Major: 12, Minor: 6}

func (n ClauseNumber) String() string {
	return fmt.Sprintf("%d.%d", n.Major, n.Minor)
}

// Next returns the following minor number.
func (n ClauseNumber) Next() ClauseNumber {
	return ClauseNumber{Major: n.Major, Minor: n.Minor + 1}
}

// IsZero reports whether n is unset.
func (n ClauseNumber) IsZero() bool {
	return n.Major == 0 && n.Minor == 0
}

// ParseClauseNumber parses "major.minor".
func ParseClauseNumber(s string) (ClauseNumber, error) {
	m := sectionNumberPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[0] != strings.TrimSpace(s) {
		return ClauseNumber{}, fmt.Errorf("invalid clause number: %q", s)
	}
	return parseMatch(m)
}

var sectionNumberPattern = regexp.MustCompile(`(\d+)\.(\d+)`)

func parseMatch(m []string) (ClauseNumber, error) {
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return ClauseNumber{}, err
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return ClauseNumber{}, err
	}
	return ClauseNumber{Major: major, Minor: minor}, nil
}

// ClauseStart finds the number of the first generated clause. It looks at the template text before
// the {{ai_clauses}} placeholder for the last major.minor section number and continues from it.
// When there is no placeholder or no preceding number, fallback is returned.
func ClauseStart(template string, fallback ClauseNumber) ClauseNumber {
	idx := strings.Index(template, TokenAIClauses.Placeholder())
	if idx < 0 {
		return fallback
	}
	matches := sectionNumberPattern.FindAllStringSubmatch(template[:idx], -1)
	if len(matches) == 0 {
		return fallback
	}
	last, err := parseMatch(matches[len(matches)-1])
	if err != nil {
		return fallback
	}
	return last.Next()
}

// RenderClauses renders clauses in order, numbering from start.
func RenderClauses(clauses []types.AIClause, start ClauseNumber) string {
	if len(clauses) == 0 {
		return ""
	}
	var sb strings.Builder
	n := start
	for i, c := range clauses {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "<p><strong>%s</strong> <em>%s:</em> %s</p>",
			n, EscapeHTML(c.Title), escapeMultiline(c.Text()))
		n = n.Next()
	}
	return sb.String()
}
