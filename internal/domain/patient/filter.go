package patient

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/readmit/readmit/internal/domain/risk"
)

// ErrInvalidRiskFilter is returned for a risk filter that is neither empty
// nor one of the risk labels.
var ErrInvalidRiskFilter = errors.New("invalid risk filter")

// Criteria is the search text and risk filter of the patient list.
type Criteria struct {
	Search string `json:"search_term" query:"search"`
	Risk   string `json:"risk_filter" query:"risk"`
}

// Validate checks that Risk is empty or a known label.
func (c Criteria) Validate() error {
	if c.Risk == "" {
		return nil
	}
	if _, ok := risk.ParseLabel(c.Risk); !ok {
		return ErrInvalidRiskFilter
	}
	return nil
}

// Matcher decides whether a patient belongs to the working set.
type Matcher struct {
	foldAccents bool
}

// NewMatcher returns a matcher. With foldAccents, combining marks are
// stripped from both sides before comparison.
func NewMatcher(foldAccents bool) Matcher {
	return Matcher{foldAccents: foldAccents}
}

func (m Matcher) normalize(s string) string {
	if m.foldAccents {
		t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
		if folded, _, err := transform.String(t, s); err == nil {
			s = folded
		}
	}
	return strings.ToLower(s)
}

// Match reports whether p satisfies both the search and the risk clause.
func (m Matcher) Match(p Patient, c Criteria) bool {
	if c.Risk != "" && string(p.Risk) != c.Risk {
		return false
	}
	if c.Search == "" {
		return true
	}
	q := m.normalize(c.Search)
	return strings.Contains(m.normalize(p.Name), q) || strings.Contains(m.normalize(p.ID), q)
}

// Filter keeps the patients matching c, in input order. The result is never nil.
func (m Matcher) Filter(patients []Patient, c Criteria) []Patient {
	out := make([]Patient, 0, len(patients))
	for _, p := range patients {
		if m.Match(p, c) {
			out = append(out, p)
		}
	}
	return out
}

// Filter applies the default, accent-sensitive matcher.
func Filter(patients []Patient, search, riskFilter string) []Patient {
	return NewMatcher(false).Filter(patients, Criteria{Search: search, Risk: riskFilter})
}
