package outfmt

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", Text, false},
		{"text", Text, false},
		{"json", JSON, false},
		{"jsonl", JSONL, false},
		{"ndjson", JSONL, false},
		{"yaml", Text, true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("Parse(%q) err = %v", tc.in, err)
		}
		if err == nil && got != tc.want {
			t.Errorf("Parse(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestModeRoundTripsThroughContext(t *testing.T) {
	ctx := WithMode(context.Background(), JSON)
	if !IsJSON(ctx) {
		t.Error("IsJSON = false after WithMode(JSON)")
	}
	if IsJSONL(ctx) {
		t.Error("IsJSONL = true for JSON mode")
	}
	if IsJSON(context.Background()) {
		t.Error("IsJSON = true for bare context")
	}
}

func TestQueryAndCompactContext(t *testing.T) {
	ctx := WithQuery(WithCompact(context.Background(), true), ".items")
	if !IsCompact(ctx) {
		t.Error("IsCompact = false")
	}
	if GetQuery(ctx) != ".items" {
		t.Errorf("GetQuery = %q", GetQuery(ctx))
	}
}

func TestWriteJSONFilteredQuery(t *testing.T) {
	var buf bytes.Buffer
	v := map[string]any{"subject": "DNS down", "status": "open"}
	if err := WriteJSONFiltered(&buf, v, ".status", true); err != nil {
		t.Fatalf("WriteJSONFiltered: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `"open"` {
		t.Errorf("output = %q", got)
	}
}

func TestWriteJSONFilteredNilSliceBecomesItemsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	var tickets []string
	if err := WriteJSONFiltered(&buf, tickets, "", true); err != nil {
		t.Fatalf("WriteJSONFiltered: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `{"items":[]}` {
		t.Errorf("output = %q", got)
	}
}

func TestFormatterTable(t *testing.T) {
	var out, errOut bytes.Buffer
	f := NewFormatter(context.Background(), &out, &errOut)

	if !f.StartTable([]string{"ID", "SUBJECT"}) {
		t.Fatal("StartTable returned false in text mode")
	}
	f.Row("7", "SSL renewal failing")
	if err := f.EndTable(); err != nil {
		t.Fatalf("EndTable: %v", err)
	}
	if !strings.Contains(out.String(), "SSL renewal failing") {
		t.Errorf("table output missing row: %q", out.String())
	}
}

func TestFormatterJSONSkipsTable(t *testing.T) {
	var out, errOut bytes.Buffer
	ctx := WithMode(context.Background(), JSON)
	f := NewFormatter(ctx, &out, &errOut)

	if f.StartTable([]string{"ID"}) {
		t.Error("StartTable returned true in JSON mode")
	}
	if err := f.Output(map[string]any{"id": 7}); err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !strings.Contains(out.String(), `"id"`) {
		t.Errorf("JSON output missing: %q", out.String())
	}
}
