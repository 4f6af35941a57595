package grants

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"
)

func TestParseFeasibility(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		expect Feasibility
	}{
		{"High", FeasibilityHigh},
		{"  medium ", FeasibilityMedium},
		{"LOW", FeasibilityLow},
		{"?", FeasibilityUnknown},
		{"", FeasibilityUnknown},
		{"very high", FeasibilityUnknown},
	}

	for _, tt := range tests {
		if got := ParseFeasibility(tt.input); got != tt.expect {
			t.Fatalf("ParseFeasibility(%q): expected %q, got %q", tt.input, tt.expect, got)
		}
	}
}

func TestTableLenHandlesNil(t *testing.T) {
	var table *Table
	if table.Len() != 0 {
		t.Fatal("nil table should have zero length")
	}

	table = &Table{Items: []*Assessed{{}}}
	if table.Len() != 1 {
		t.Fatalf("expected length 1, got %d", table.Len())
	}
}

func TestTableDumpToTmpFile(t *testing.T) {
	table := &Table{
		RunID:       "run-1",
		Mission:     "test mission",
		GeneratedAt: time.Now().UTC(),
		Items: []*Assessed{
			{
				Scored: Scored{
					Candidate:  Candidate{Title: "STEM Fund", Sponsor: "Acme"},
					Similarity: 0.87,
				},
				Feasibility: FeasibilityHigh,
				WhyFit:      "strong overlap",
			},
		},
	}

	path, err := table.DumpToTmpFile()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}

	var decoded Table
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decoding dump: %v", err)
	}

	if decoded.Len() != 1 || decoded.Items[0].Title != "STEM Fund" {
		t.Fatalf("unexpected dump content: %+v", decoded)
	}
	if decoded.Items[0].Feasibility != FeasibilityHigh {
		t.Fatalf("unexpected feasibility: %q", decoded.Items[0].Feasibility)
	}
}

func TestTableRender(t *testing.T) {
	empty := &Table{}
	if got := empty.Render(); !strings.Contains(got, "no grants") {
		t.Fatalf("unexpected empty render: %q", got)
	}

	table := &Table{
		Items: []*Assessed{
			{
				Scored: Scored{
					Candidate:  Candidate{Title: "Youth Equity Grant", Sponsor: "Acme Foundation"},
					Similarity: 0.91,
				},
				Feasibility: FeasibilityMedium,
			},
		},
	}

	out := table.Render()
	for _, want := range []string{"Youth Equity Grant", "Acme Foundation", "0.910", "Medium"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered table missing %q:\n%s", want, out)
		}
	}
}

func TestTableTitles(t *testing.T) {
	table := &Table{
		Items: []*Assessed{
			{Scored: Scored{Candidate: Candidate{Title: "A"}}},
			{Scored: Scored{Candidate: Candidate{Title: "B"}}},
		},
	}

	titles := table.Titles()
	if len(titles) != 2 || titles[0] != "A" || titles[1] != "B" {
		t.Fatalf("unexpected titles: %v", titles)
	}
}
