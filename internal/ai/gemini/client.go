package gemini

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ctrisenet/grant-scout/internal/ai"
	"github.com/ctrisenet/grant-scout/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	defaultChatModel  = "gemini-2.5-flash"
	defaultEmbedModel = "gemini-embedding-001"
	defaultEmbedDim   = 1536
	defaultAttempts   = 5
	defaultBaseDelay  = 2 * time.Second
	defaultTemp       = 0.7
	defaultMaxLogLen  = 200
)

// swappable in tests
var (
	wait   = utils.WaitFor
	jitter = rand.Float64
)

// modelCaller is the subset of the genai model surface the generator uses.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config holds the tunables for the Gemini-backed generator.
type Config struct {
	ChatModel      string
	EmbedModel     string
	EmbedDimension int
	// Temperature overrides the sampling temperature when set. Nil means
	// the default; an explicit zero is honored.
	Temperature  *float64
	MaxAttempts  int
	BaseDelay    time.Duration
	QPS          float64
	MaxLogLength int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ChatModel) == "" {
		c.ChatModel = defaultChatModel
	}
	if strings.TrimSpace(c.EmbedModel) == "" {
		c.EmbedModel = defaultEmbedModel
	}
	if c.EmbedDimension <= 0 {
		c.EmbedDimension = defaultEmbedDim
	}
	if c.Temperature == nil {
		c.Temperature = genai.Ptr(float64(defaultTemp))
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = defaultMaxLogLen
	}
	return c
}

// Generator wraps the Google GenAI client with bounded exponential backoff on
// rate-limit errors and an optional client-side request limiter.
type Generator struct {
	models  modelCaller
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ ai.Assistant = (*Generator)(nil)

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey string, config Config, logger *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	config = config.withDefaults()

	var limiter *rate.Limiter
	if config.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.QPS), 1)
	}

	return &Generator{
		models:  client.Models,
		config:  config,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// ChatModel returns the configured completion model identifier.
func (g *Generator) ChatModel() string { return g.config.ChatModel }

// EmbedModel returns the configured embedding model identifier.
func (g *Generator) EmbedModel() string { return g.config.EmbedModel }

// Dimension returns the embedding dimension used for the zero-vector fallback.
func (g *Generator) Dimension() int { return g.config.EmbedDimension }

// Complete sends a system instruction plus a single user turn and returns the
// model's textual response. Rate-limit errors are retried with exponential
// backoff; exhausting the retry budget returns an error wrapping
// ai.ErrRateLimited.
func (g *Generator) Complete(ctx context.Context, system, user string, maxTokens int32) (string, error) {
	if g == nil || g.models == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	user = strings.TrimSpace(user)
	if user == "" {
		return "", errors.New("prompt must not be empty")
	}

	config := &genai.GenerateContentConfig{}
	if g.config.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*g.config.Temperature))
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	g.logger.Debug("gemini completion request",
		zap.String("model", g.config.ChatModel),
		zap.Int32("max_tokens", maxTokens),
		zap.String("prompt_preview", utils.TruncateForLog(user, g.config.MaxLogLength)),
	)

	var resp *genai.GenerateContentResponse
	err := g.withBackoff(ctx, "completion", func() error {
		var callErr error
		resp, callErr = g.models.GenerateContent(ctx, g.config.ChatModel, genai.Text(user), config)
		return callErr
	})
	if err != nil {
		return "", err
	}

	output := collectText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	g.logger.Debug("gemini completion response",
		zap.String("model", g.config.ChatModel),
		zap.String("response_preview", utils.TruncateForLog(output, g.config.MaxLogLength)),
	)

	return output, nil
}

// Embed returns the embedding vector for the provided text. When the provider
// stays rate-limited through the whole retry budget a zero vector of the
// configured dimension is returned instead of an error.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if g == nil || g.models == nil {
		return nil, errors.New("gemini generator is not initialized")
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text to embed must not be empty")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}
	config := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}

	var resp *genai.EmbedContentResponse
	err := g.withBackoff(ctx, "embedding", func() error {
		var callErr error
		resp, callErr = g.models.EmbedContent(ctx, g.config.EmbedModel, contents, config)
		return callErr
	})
	if err != nil {
		if errors.Is(err, ai.ErrRateLimited) {
			g.logger.Warn("embedding still rate-limited, falling back to zero vector",
				zap.String("model", g.config.EmbedModel),
				zap.Int("dimension", g.config.EmbedDimension),
			)
			return make([]float32, g.config.EmbedDimension), nil
		}
		return nil, err
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned no embeddings")
	}

	return resp.Embeddings[0].Values, nil
}

// withBackoff runs the call up to MaxAttempts times, sleeping
// BaseDelay*2^attempt plus up to one second of jitter between attempts.
// Only rate-limit errors are retried.
func (g *Generator) withBackoff(ctx context.Context, op string, call func() error) error {
	var lastErr error

	for attempt := 0; attempt < g.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := g.config.BaseDelay*time.Duration(1<<(attempt-1)) + time.Duration(jitter()*float64(time.Second))
			g.logger.Debug("backing off before retry",
				zap.String("operation", op),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := wait(ctx, delay); err != nil {
				return err
			}
		}

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := call()
		if err == nil {
			return nil
		}

		if !isRateLimited(err) {
			return fmt.Errorf("%s: %w", op, err)
		}

		lastErr = err
		g.logger.Warn("rate limited by gemini api",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	return fmt.Errorf("%s after %d attempts: %w: %w", op, g.config.MaxAttempts, ai.ErrRateLimited, lastErr)
}

func isRateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	return false
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
