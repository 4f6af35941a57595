// Package pipeline implements the grant research flow: candidate generation
// via structured extraction from model output, embedding-based relevance
// ranking against the mission statement, and per-item feasibility
// classification of the shortlist.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ctrisenet/grant-scout/internal/ai"
	"github.com/ctrisenet/grant-scout/internal/grants"
	"github.com/ctrisenet/grant-scout/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase is the current stage of a pipeline run.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseGenerating  Phase = "generating"
	PhaseRanking     Phase = "ranking"
	PhaseClassifying Phase = "classifying"
	PhaseReady       Phase = "ready"
	PhaseEmpty       Phase = "empty"
	PhaseFailed      Phase = "failed"
)

// ErrRunInFlight is returned when a run is triggered while another one is
// still executing. Runs are serialized rather than queued.
var ErrRunInFlight = errors.New("a pipeline run is already in flight")

const (
	defaultNum               = 15
	defaultTop               = 8
	defaultPromptRetries     = 3
	defaultGenerateMaxTokens = 900
	defaultClassifyMaxTokens = 60
	defaultCacheTTL          = 24 * time.Hour
)

// Config holds the pipeline tunables.
type Config struct {
	// Mission is the anchor text for relevance scoring. Required.
	Mission string
	// Num is how many candidates the model is asked for.
	Num int
	// Top is the shortlist size handed to the classifier.
	Top int
	// PromptRetries bounds re-asking the model when its output does not
	// parse as a JSON array.
	PromptRetries int
	// GenerateMaxTokens bounds the extraction completion.
	GenerateMaxTokens int32
	// ClassifyMaxTokens bounds each feasibility verdict. Kept tight so
	// responses stay terse; a truncated verdict parses as Unknown.
	ClassifyMaxTokens int32
	// CacheTTL is how long a successful extraction is memoized.
	CacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Num <= 0 {
		c.Num = defaultNum
	}
	if c.Top <= 0 {
		c.Top = min(defaultTop, c.Num)
	} else if c.Top > c.Num {
		c.Top = c.Num
	}
	if c.PromptRetries <= 0 {
		c.PromptRetries = defaultPromptRetries
	}
	if c.GenerateMaxTokens <= 0 {
		c.GenerateMaxTokens = defaultGenerateMaxTokens
	}
	if c.ClassifyMaxTokens <= 0 {
		c.ClassifyMaxTokens = defaultClassifyMaxTokens
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// Runner executes pipeline runs one at a time.
type Runner struct {
	config    Config
	assistant ai.Assistant
	cache     *extractCache
	logger    *zap.Logger

	mu sync.Mutex

	phaseMu sync.Mutex
	phase   Phase
}

// New creates a Runner. The mission must be non-empty.
func New(config Config, assistant ai.Assistant, log *zap.Logger) (*Runner, error) {
	if assistant == nil {
		return nil, errors.New("ai assistant is required")
	}
	if config.Mission == "" {
		return nil, errors.New("mission statement is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	config = config.withDefaults()

	return &Runner{
		config:    config,
		assistant: assistant,
		cache:     newExtractCache(config.CacheTTL),
		logger:    log,
		phase:     PhaseIdle,
	}, nil
}

// Phase returns the phase the most recent run reached.
func (r *Runner) Phase() Phase {
	r.phaseMu.Lock()
	defer r.phaseMu.Unlock()
	return r.phase
}

// Run executes one full pipeline pass and returns the assessed shortlist.
// A concurrent trigger is rejected with ErrRunInFlight. When refresh is set
// the memoized extraction is bypassed.
//
// The returned table is never nil on success; a run that produced no usable
// candidates yields a table with zero items so callers can distinguish it
// from "no run yet".
func (r *Runner) Run(ctx context.Context, refresh bool) (*grants.Table, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInFlight
	}
	defer r.mu.Unlock()

	runID := uuid.NewString()
	log := r.logger.With(zap.String(logger.FieldRunID, runID))

	r.setPhase(log, PhaseGenerating)
	extraction, err := r.extract(ctx, log, refresh)
	if err != nil {
		r.setPhase(log, PhaseFailed)
		return nil, err
	}

	table := &grants.Table{
		RunID:       runID,
		Mission:     r.config.Mission,
		GeneratedAt: time.Now().UTC(),
	}

	if len(extraction.Candidates) == 0 {
		log.Info("no usable candidates extracted", zap.String("reason", string(extraction.Reason)))
		r.setPhase(log, PhaseEmpty)
		table.Items = []*grants.Assessed{}
		return table, nil
	}

	r.setPhase(log, PhaseRanking)
	shortlist, err := r.rank(ctx, log, extraction.Candidates)
	if err != nil {
		r.setPhase(log, PhaseFailed)
		return nil, err
	}

	r.setPhase(log, PhaseClassifying)
	table.Items = r.classify(ctx, log, shortlist)

	r.setPhase(log, PhaseReady)
	log.Info("pipeline run finished",
		zap.Int("candidates", len(extraction.Candidates)),
		zap.Int("shortlisted", len(table.Items)),
	)

	return table, nil
}

func (r *Runner) setPhase(log *zap.Logger, phase Phase) {
	r.phaseMu.Lock()
	r.phase = phase
	r.phaseMu.Unlock()
	log.Debug("pipeline phase", zap.String(logger.FieldPhase, string(phase)))
}
