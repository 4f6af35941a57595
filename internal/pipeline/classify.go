package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	_ "embed"

	"github.com/ctrisenet/grant-scout/internal/grants"

	"go.uber.org/zap"
)

//go:embed feasibility_prompt.md
var feasibilityPromptTemplate string

const parseErrorRationale = "parse error"

type verdict struct {
	Feasibility string `json:"feasibility"`
	Why         string `json:"why"`
}

// classify asks the model for a feasibility verdict per shortlisted grant.
// Failures are isolated per item: a grant whose verdict cannot be obtained or
// parsed is marked Unknown and the batch continues.
func (r *Runner) classify(ctx context.Context, log *zap.Logger, shortlist []*grants.Scored) []*grants.Assessed {
	assessed := make([]*grants.Assessed, 0, len(shortlist))

	for _, item := range shortlist {
		feasibility, why := r.classifyOne(ctx, log, item)
		assessed = append(assessed, &grants.Assessed{
			Scored:      *item,
			Feasibility: feasibility,
			WhyFit:      why,
		})
	}

	return assessed
}

func (r *Runner) classifyOne(ctx context.Context, log *zap.Logger, item *grants.Scored) (grants.Feasibility, string) {
	prompt := buildFeasibilityPrompt(r.config.Mission, item.Title, item.Summary)

	raw, err := r.assistant.Complete(ctx, "", prompt, r.config.ClassifyMaxTokens)
	if err != nil {
		log.Warn("feasibility call failed",
			zap.String("title", item.Title),
			zap.Error(err),
		)
		return grants.FeasibilityUnknown, parseErrorRationale
	}

	v, ok := parseVerdict(raw)
	if !ok {
		log.Warn("feasibility response did not parse", zap.String("title", item.Title))
		return grants.FeasibilityUnknown, parseErrorRationale
	}

	return grants.ParseFeasibility(v.Feasibility), strings.TrimSpace(v.Why)
}

func buildFeasibilityPrompt(mission, title, summary string) string {
	prompt := strings.ReplaceAll(feasibilityPromptTemplate, "{{MISSION}}", mission)
	prompt = strings.ReplaceAll(prompt, "{{TITLE}}", title)
	return strings.ReplaceAll(prompt, "{{SUMMARY}}", summary)
}

func parseVerdict(raw string) (verdict, bool) {
	cleaned := stripFences(raw)

	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v, true
	}

	snippet, found := salvageObject(cleaned)
	if !found {
		return verdict{}, false
	}

	if err := json.Unmarshal([]byte(snippet), &v); err != nil {
		return verdict{}, false
	}

	return v, true
}
