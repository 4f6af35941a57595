package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	_ "embed"

	"github.com/ctrisenet/grant-scout/internal/grants"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

//go:embed grants_prompt.md
var grantsPromptTemplate string

const (
	researcherSystemPrompt = "You are a nonprofit grants researcher."
	correctiveSystemPrompt = "Your previous response was not valid JSON. Return ONLY a JSON array."
)

// ExtractReason explains why an extraction produced no candidates.
type ExtractReason string

const (
	// ReasonNone marks a successful parse, even one that yielded an empty array.
	ReasonNone ExtractReason = ""
	// ReasonParseFailed marks model output that never yielded a parseable
	// array within the prompt-retry budget.
	ReasonParseFailed ExtractReason = "parse_failed"
	// ReasonModelEmpty marks a well-formed but empty array from the model.
	ReasonModelEmpty ExtractReason = "model_returned_empty_array"
)

// Extraction is the outcome of the candidate-generation stage. Candidates may
// be empty; Reason then tells "nothing found" apart from "output unparseable".
type Extraction struct {
	Candidates []*grants.Candidate
	Reason     ExtractReason
}

// extract obtains candidate grants from the model, memoized for the
// configured TTL. Malformed output degrades to an empty extraction with a
// reason; only call failures are returned as errors.
func (r *Runner) extract(ctx context.Context, log *zap.Logger, refresh bool) (Extraction, error) {
	key := r.cacheKey()

	if !refresh {
		if cached, ok := r.cache.lookup(key); ok {
			log.Info("using memoized candidates", zap.Int("count", len(cached.Candidates)))
			return cached, nil
		}
	}

	extraction, err := r.fetchCandidates(ctx, log)
	if err != nil {
		return Extraction{}, err
	}

	if extraction.Reason == ReasonNone && len(extraction.Candidates) > 0 {
		r.cache.store(key, extraction)
	}

	return extraction, nil
}

func (r *Runner) cacheKey() string {
	return hashKey(r.config.Mission, strconv.Itoa(r.config.Num))
}

// fetchCandidates asks the model for the list, re-asking with a corrective
// system instruction when the response does not parse as a JSON array.
func (r *Runner) fetchCandidates(ctx context.Context, log *zap.Logger) (Extraction, error) {
	prompt := strings.ReplaceAll(grantsPromptTemplate, "{{NUM}}", strconv.Itoa(r.config.Num))
	system := researcherSystemPrompt

	for attempt := 0; attempt < r.config.PromptRetries; attempt++ {
		raw, err := r.assistant.Complete(ctx, system, prompt, r.config.GenerateMaxTokens)
		if err != nil {
			return Extraction{}, err
		}

		candidates, ok := parseCandidates(raw)
		if ok {
			if len(candidates) > r.config.Num {
				candidates = candidates[:r.config.Num]
			}

			reason := ReasonNone
			if len(candidates) == 0 {
				reason = ReasonModelEmpty
			}

			log.Info("extracted candidates",
				zap.Int("count", len(candidates)),
				zap.Int("attempt", attempt),
			)
			return Extraction{Candidates: candidates, Reason: reason}, nil
		}

		log.Warn("model output did not parse as a JSON array", zap.Int("attempt", attempt))
		system = correctiveSystemPrompt
	}

	return Extraction{Reason: ReasonParseFailed}, nil
}

// parseCandidates tries a direct parse of the response as a JSON array and
// falls back to the widest bracketed substring.
func parseCandidates(raw string) ([]*grants.Candidate, bool) {
	cleaned := stripFences(raw)

	if candidates, ok := decodeCandidates(cleaned); ok {
		return candidates, true
	}

	snippet, found := salvageArray(cleaned)
	if !found {
		return nil, false
	}

	return decodeCandidates(snippet)
}

func decodeCandidates(text string) ([]*grants.Candidate, bool) {
	var items []map[string]any
	if err := json.Unmarshal([]byte(text), &items); err != nil {
		return nil, false
	}

	// Decode loosely so a numeric amount or missing keys do not drop the
	// whole record.
	var candidates []*grants.Candidate
	cfg := &mapstructure.DecoderConfig{
		Result:           &candidates,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return nil, false
	}
	if err := decoder.Decode(items); err != nil {
		return nil, false
	}

	if candidates == nil {
		candidates = []*grants.Candidate{}
	}
	return candidates, true
}
