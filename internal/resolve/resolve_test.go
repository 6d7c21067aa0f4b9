package resolve_test

import (
	"errors"
	"testing"

	"github.com/hostdesk/hostdesk-cli/internal/api"
	"github.com/hostdesk/hostdesk-cli/internal/resolve"
)

func departments() []resolve.Named {
	return []resolve.Named{
		{ID: 1, Name: "Billing"},
		{ID: 2, Name: "Technical Support"},
		{ID: 3, Name: "Domain Transfers"},
	}
}

func TestFuzzyMatch_ExactHit(t *testing.T) {
	id, err := resolve.FuzzyMatch("Billing", departments())
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected ID 1, got %d", id)
	}
}

func TestFuzzyMatch_PartialHit(t *testing.T) {
	id, err := resolve.FuzzyMatch("tech", departments())
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("expected ID 2, got %d", id)
	}
}

func TestFuzzyMatch_CaseInsensitive(t *testing.T) {
	id, err := resolve.FuzzyMatch("BILLING", departments())
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected ID 1, got %d", id)
	}
}

func TestFuzzyMatch_NoMatch(t *testing.T) {
	if _, err := resolve.FuzzyMatch("xyzzy", departments()); err == nil {
		t.Fatal("expected error for no match")
	}
}

func TestFuzzyMatch_EmptyQuery(t *testing.T) {
	if _, err := resolve.FuzzyMatch("  ", departments()); !errors.Is(err, resolve.ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestFuzzyMatch_EmptyItems(t *testing.T) {
	if _, err := resolve.FuzzyMatch("billing", nil); !errors.Is(err, resolve.ErrEmptyItems) {
		t.Fatalf("err = %v, want ErrEmptyItems", err)
	}
}

func TestFuzzyMatch_ExactBeatsFuzzyTie(t *testing.T) {
	items := []resolve.Named{
		{ID: 1, Name: "Support"},
		{ID: 2, Name: "support"},
	}
	id, err := resolve.FuzzyMatch("Support", items)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected first exact match, got %d", id)
	}
}

func TestFuzzyMatch_Ambiguous(t *testing.T) {
	items := []resolve.Named{
		{ID: 1, Name: "Sales East"},
		{ID: 2, Name: "Sales West"},
	}
	_, err := resolve.FuzzyMatch("sales", items)
	var ambiguous *resolve.AmbiguousError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want AmbiguousError", err)
	}
	if len(ambiguous.Matches) != 2 {
		t.Fatalf("candidates = %d, want 2", len(ambiguous.Matches))
	}
}

func TestFuzzyMatchAll_RankedAndCapped(t *testing.T) {
	matches := resolve.FuzzyMatchAll("s", departments(), 2)
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not sorted best-first")
	}
}

func TestDepartmentArg_NumericPassthrough(t *testing.T) {
	id, err := resolve.DepartmentArg("42", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}
}

func TestDepartmentArg_FuzzyName(t *testing.T) {
	deps := []api.Department{
		{ID: 1, Name: "Billing"},
		{ID: 2, Name: "Technical Support"},
	}
	id, err := resolve.DepartmentArg("billing", deps)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Fatalf("expected 1, got %d", id)
	}
}

func TestOperatorArg_FuzzyName(t *testing.T) {
	ops := []api.Operator{
		{ID: 10, Name: "Dana Reyes"},
		{ID: 11, Name: "Sam Ortiz"},
	}
	id, err := resolve.OperatorArg("dana", ops)
	if err != nil {
		t.Fatal(err)
	}
	if id != 10 {
		t.Fatalf("expected 10, got %d", id)
	}
}

func TestDepartmentArg_SlugExactMatch(t *testing.T) {
	deps := []api.Department{
		{ID: 1, Name: "Billing", Slug: "billing"},
		{ID: 2, Name: "Technical Support", Slug: "tech"},
	}
	id, err := resolve.DepartmentArg("TECH", deps)
	if err != nil {
		t.Fatal(err)
	}
	if id != 2 {
		t.Fatalf("expected 2, got %d", id)
	}
}

func TestOperatorArg_EmailExactMatch(t *testing.T) {
	ops := []api.Operator{
		{ID: 10, Name: "Dana Reyes", Email: "dana@example.com"},
		{ID: 11, Name: "Sam Ortiz", Email: "sam@example.com"},
	}
	id, err := resolve.OperatorArg("sam@example.com", ops)
	if err != nil {
		t.Fatal(err)
	}
	if id != 11 {
		t.Fatalf("expected 11, got %d", id)
	}
}

func TestFuzzyMatch_AltNeverFuzzyScores(t *testing.T) {
	items := []resolve.Named{
		{ID: 1, Name: "Billing", Alt: "xyzzy"},
	}
	if _, err := resolve.FuzzyMatch("xyzz", items); err == nil {
		t.Fatal("partial alt input must not match")
	}
}
