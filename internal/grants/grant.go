package grants

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// Candidate is a single grant opportunity extracted from raw model output.
// Fields the model omitted stay empty; downstream consumers must tolerate
// partially filled records.
type Candidate struct {
	Title    string `json:"title,omitempty"`
	Sponsor  string `json:"sponsor,omitempty"`
	Amount   string `json:"amount,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Deadline string `json:"deadline,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Scored is a candidate annotated with its cosine similarity to the mission.
type Scored struct {
	Candidate
	Similarity float64 `json:"similarity"`
}

// Assessed is a scored candidate annotated with a feasibility verdict.
type Assessed struct {
	Scored
	Feasibility Feasibility `json:"feasibility"`
	WhyFit      string      `json:"why_fit,omitempty"`
}

// Feasibility is the classifier verdict for a single grant.
type Feasibility string

const (
	FeasibilityHigh    Feasibility = "High"
	FeasibilityMedium  Feasibility = "Medium"
	FeasibilityLow     Feasibility = "Low"
	FeasibilityUnknown Feasibility = "Unknown"
)

// ParseFeasibility normalizes a raw model value into one of the known
// verdicts. Anything unrecognized, including an empty string, maps to Unknown.
func ParseFeasibility(raw string) Feasibility {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high":
		return FeasibilityHigh
	case "medium":
		return FeasibilityMedium
	case "low":
		return FeasibilityLow
	default:
		return FeasibilityUnknown
	}
}

// Table is the final artifact of a pipeline run: an ordered shortlist of
// assessed grants. A nil Table means no run has happened yet; a Table with no
// items means the run produced nothing usable.
type Table struct {
	RunID       string      `json:"run_id,omitempty"`
	Mission     string      `json:"mission,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
	Items       []*Assessed `json:"items"`
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Items)
}

// DumpToTmpFile writes the table as indented JSON to a temporary file and
// returns its path.
func (t *Table) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "grants_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// Titles returns the candidate titles in table order.
func (t *Table) Titles() []string {
	titles := make([]string, 0, t.Len())
	if t == nil {
		return titles
	}
	for _, item := range t.Items {
		titles = append(titles, item.Title)
	}
	return titles
}
