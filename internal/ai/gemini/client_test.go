package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/ctrisenet/grant-scout/internal/ai"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	generateCalls   int
	generateQueue   []fakeGenerateResponse
	generateConfigs []*genai.GenerateContentConfig

	embedCalls   int
	embedQueue   []fakeEmbedResponse
	embedConfigs []*genai.EmbedContentConfig
}

type fakeGenerateResponse struct {
	resp *genai.GenerateContentResponse
	err  error
}

type fakeEmbedResponse struct {
	resp *genai.EmbedContentResponse
	err  error
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.generateConfigs = append(f.generateConfigs, config)
	if f.generateCalls >= len(f.generateQueue) {
		return nil, errors.New("unexpected generate call")
	}
	res := f.generateQueue[f.generateCalls]
	f.generateCalls++
	return res.resp, res.err
}

func (f *fakeModels) EmbedContent(_ context.Context, _ string, _ []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedConfigs = append(f.embedConfigs, config)
	if f.embedCalls >= len(f.embedQueue) {
		return nil, errors.New("unexpected embed call")
	}
	res := f.embedQueue[f.embedCalls]
	f.embedCalls++
	return res.resp, res.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func embedResponse(values []float32) *genai.EmbedContentResponse {
	return &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: values}},
	}
}

func newTestGenerator(models modelCaller, attempts int) *Generator {
	return &Generator{
		models: models,
		config: Config{
			ChatModel:      "gemini-test",
			EmbedModel:     "embed-test",
			EmbedDimension: 4,
			Temperature:    genai.Ptr(0.7),
			MaxAttempts:    attempts,
			BaseDelay:      time.Second,
			MaxLogLength:   100,
		},
		logger: zap.NewNop(),
	}
}

func stubClock(t *testing.T) *[]time.Duration {
	t.Helper()

	delays := &[]time.Duration{}
	originalWait := wait
	originalJitter := jitter
	wait = func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	jitter = func() float64 { return 0.5 }
	t.Cleanup(func() {
		wait = originalWait
		jitter = originalJitter
	})

	return delays
}

func rateLimitErr() error {
	return genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}
}

func TestCompleteRetriesOnRateLimit(t *testing.T) {
	delays := stubClock(t)

	models := &fakeModels{generateQueue: []fakeGenerateResponse{
		{err: rateLimitErr()},
		{resp: textResponse("retry ok")},
	}}
	g := newTestGenerator(models, 5)

	output, err := g.Complete(context.Background(), "system", "message", 100)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}
	if models.generateCalls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.generateCalls)
	}
	if len(*delays) != 1 || (*delays)[0] != time.Second+500*time.Millisecond {
		t.Fatalf("unexpected delays: %v", *delays)
	}

	cfg := models.generateConfigs[0]
	if cfg == nil || cfg.SystemInstruction == nil || cfg.SystemInstruction.Parts[0].Text != "system" {
		t.Fatalf("expected system instruction to be set: %+v", cfg)
	}
	if cfg.MaxOutputTokens != 100 {
		t.Fatalf("unexpected max tokens: %d", cfg.MaxOutputTokens)
	}
}

func TestCompleteFailsAfterRetriesExhausted(t *testing.T) {
	delays := stubClock(t)

	models := &fakeModels{generateQueue: []fakeGenerateResponse{
		{err: rateLimitErr()},
		{err: rateLimitErr()},
		{err: rateLimitErr()},
	}}
	g := newTestGenerator(models, 3)

	_, err := g.Complete(context.Background(), "sys", "msg", 50)
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	if !errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
	if models.generateCalls != 3 {
		t.Fatalf("expected 3 calls, got %d", models.generateCalls)
	}

	// Backoff delays must be non-decreasing in attempt index.
	for i := 1; i < len(*delays); i++ {
		if (*delays)[i] < (*delays)[i-1] {
			t.Fatalf("delays not non-decreasing: %v", *delays)
		}
	}
}

func TestCompleteDoesNotRetryOnOtherErrors(t *testing.T) {
	stubClock(t)

	fatal := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models := &fakeModels{generateQueue: []fakeGenerateResponse{{err: fatal}}}
	g := newTestGenerator(models, 5)

	_, err := g.Complete(context.Background(), "sys", "msg", 50)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ai.ErrRateLimited) {
		t.Fatalf("fatal error should not be marked rate-limited: %v", err)
	}
	if models.generateCalls != 1 {
		t.Fatalf("expected single call, got %d", models.generateCalls)
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	stubClock(t)

	models := &fakeModels{embedQueue: []fakeEmbedResponse{
		{resp: embedResponse([]float32{0.1, 0.2, 0.3, 0.4})},
	}}
	g := newTestGenerator(models, 5)

	vec, err := g.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(vec) != 4 || vec[1] != 0.2 {
		t.Fatalf("unexpected vector: %v", vec)
	}

	if len(models.embedConfigs) != 1 || models.embedConfigs[0] == nil {
		t.Fatalf("expected one recorded embed config, got %v", models.embedConfigs)
	}
	if models.embedConfigs[0].TaskType != "SEMANTIC_SIMILARITY" {
		t.Fatalf("unexpected task type: %q", models.embedConfigs[0].TaskType)
	}
}

func TestEmbedFallsBackToZeroVectorWhenRateLimited(t *testing.T) {
	delays := stubClock(t)

	models := &fakeModels{embedQueue: []fakeEmbedResponse{
		{err: rateLimitErr()},
		{err: rateLimitErr()},
	}}
	g := newTestGenerator(models, 2)

	vec, err := g.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("expected zero-vector fallback, got error %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected vector of configured dimension, got %d", len(vec))
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, got %v", vec)
		}
	}
	if models.embedCalls != 2 {
		t.Fatalf("expected 2 calls, got %d", models.embedCalls)
	}
	if len(*delays) != 1 {
		t.Fatalf("expected one backoff delay, got %v", *delays)
	}
}

func TestEmbedPropagatesFatalErrors(t *testing.T) {
	stubClock(t)

	fatal := genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}
	models := &fakeModels{embedQueue: []fakeEmbedResponse{{err: fatal}}}
	g := newTestGenerator(models, 5)

	if _, err := g.Embed(context.Background(), "some text"); err == nil {
		t.Fatal("expected error")
	}
	if models.embedCalls != 1 {
		t.Fatalf("expected single call, got %d", models.embedCalls)
	}
}

func TestConfigTemperatureDefaultsAndZero(t *testing.T) {
	t.Parallel()

	got := Config{}.withDefaults()
	if got.Temperature == nil || *got.Temperature != defaultTemp {
		t.Fatalf("expected default temperature, got %v", got.Temperature)
	}

	zero := 0.0
	got = Config{Temperature: &zero}.withDefaults()
	if got.Temperature == nil || *got.Temperature != 0 {
		t.Fatalf("expected explicit zero temperature to survive, got %v", got.Temperature)
	}
}

func TestCompleteHonorsExplicitZeroTemperature(t *testing.T) {
	stubClock(t)

	models := &fakeModels{generateQueue: []fakeGenerateResponse{
		{resp: textResponse("deterministic")},
	}}
	g := newTestGenerator(models, 1)
	g.config.Temperature = genai.Ptr(0.0)

	if _, err := g.Complete(context.Background(), "sys", "msg", 10); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	cfg := models.generateConfigs[0]
	if cfg.Temperature == nil || *cfg.Temperature != 0 {
		t.Fatalf("expected zero temperature on the request, got %v", cfg.Temperature)
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	g := newTestGenerator(&fakeModels{}, 1)
	if _, err := g.Complete(context.Background(), "sys", "   ", 10); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
