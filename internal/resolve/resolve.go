// Package resolve turns human command-line arguments into HostDesk
// resource IDs. "billing", "tech", and "7" all name a department; "Dana",
// "dana@example.com", and "10" all name an operator. Numeric input is an
// ID, an exact name/slug/email hit wins outright, and anything else
// fuzzy-matches against display names.
package resolve

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/hostdesk/hostdesk-cli/internal/api"
)

// Named is one matchable resource. Alt is a secondary exact-match key: a
// department's slug or an operator's email. Alt never participates in
// fuzzy scoring, only in the exact phase.
type Named struct {
	ID   int
	Name string
	Alt  string
}

// Match is one ranked candidate from a fuzzy search.
type Match struct {
	ID    int
	Name  string
	Score int
}

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrEmptyItems = errors.New("no items to match against")
)

// AmbiguousError reports a query whose best fuzzy candidates tie.
// Matches are ranked best-first and capped at five.
type AmbiguousError struct {
	Query   string
	Matches []Match
}

func (e *AmbiguousError) Error() string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "ambiguous match for %q", e.Query)
	if len(e.Matches) > 0 {
		b.WriteString(", candidates:")
		for _, m := range e.Matches {
			_, _ = fmt.Fprintf(&b, "\n  %d: %s", m.ID, m.Name)
		}
	}
	return b.String()
}

// DepartmentArg resolves a department argument by ID, slug, or name.
func DepartmentArg(arg string, departments []api.Department) (int, error) {
	if id, ok := numericID(arg); ok {
		return id, nil
	}
	items := make([]Named, len(departments))
	for i, d := range departments {
		items[i] = Named{ID: d.ID, Name: d.Name, Alt: d.Slug}
	}
	return FuzzyMatch(arg, items)
}

// OperatorArg resolves an operator argument by ID, email, or name.
func OperatorArg(arg string, operators []api.Operator) (int, error) {
	if id, ok := numericID(arg); ok {
		return id, nil
	}
	items := make([]Named, len(operators))
	for i, o := range operators {
		items[i] = Named{ID: o.ID, Name: o.Name, Alt: o.Email}
	}
	return FuzzyMatch(arg, items)
}

func numericID(arg string) (int, bool) {
	id, err := strconv.Atoi(arg)
	return id, err == nil && id > 0
}

// FuzzyMatch resolves a query against the items and returns the winning
// ID. An exact case-insensitive hit on Name or Alt short-circuits the
// fuzzy phase, so "tech" always means the department whose slug is tech
// even when another department's name scores higher. A score tie between
// the top two fuzzy candidates is an *AmbiguousError, never a guess.
func FuzzyMatch(query string, items []Named) (int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, ErrEmptyQuery
	}
	if len(items) == 0 {
		return 0, ErrEmptyItems
	}

	for _, item := range items {
		if strings.EqualFold(item.Name, query) {
			return item.ID, nil
		}
	}
	for _, item := range items {
		if item.Alt != "" && strings.EqualFold(item.Alt, query) {
			return item.ID, nil
		}
	}

	results := fuzzy.FindFrom(strings.ToLower(query), byLowerName(items))
	switch {
	case len(results) == 0:
		return 0, fmt.Errorf("no match found for %q", query)
	case len(results) > 1 && results[0].Score == results[1].Score:
		return 0, &AmbiguousError{Query: query, Matches: rank(items, results, 5)}
	default:
		return items[results[0].Index].ID, nil
	}
}

// FuzzyMatchAll returns up to limit candidates ranked best-first, for
// "did you mean" style suggestions.
func FuzzyMatchAll(query string, items []Named, limit int) []Match {
	query = strings.TrimSpace(query)
	if query == "" || len(items) == 0 || limit <= 0 {
		return nil
	}
	return rank(items, fuzzy.FindFrom(strings.ToLower(query), byLowerName(items)), limit)
}

// byLowerName adapts items to the matcher's source interface, folding
// case so scoring ignores it.
type byLowerName []Named

func (s byLowerName) String(i int) string { return strings.ToLower(s[i].Name) }
func (s byLowerName) Len() int            { return len(s) }

func rank(items []Named, results fuzzy.Matches, limit int) []Match {
	if len(results) == 0 || limit <= 0 {
		return nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:    items[r.Index].ID,
			Name:  items[r.Index].Name,
			Score: r.Score,
		}
	}
	return matches
}
