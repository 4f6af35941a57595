package pipeline

import (
	"context"
	"math"
	"sort"

	"github.com/ctrisenet/grant-scout/internal/grants"

	"go.uber.org/zap"
)

// rank embeds the mission once and every candidate summary, scores each
// candidate by cosine similarity, and returns the top slice sorted in
// non-increasing order. Ties keep the original candidate order.
func (r *Runner) rank(ctx context.Context, log *zap.Logger, candidates []*grants.Candidate) ([]*grants.Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	if len(candidates) > r.config.Num {
		candidates = candidates[:r.config.Num]
	}

	missionVec, err := r.assistant.Embed(ctx, r.config.Mission)
	if err != nil {
		return nil, err
	}

	scored := make([]*grants.Scored, 0, len(candidates))
	for _, candidate := range candidates {
		similarity := 0.0
		if candidate.Summary != "" {
			vec, err := r.assistant.Embed(ctx, candidate.Summary)
			if err != nil {
				return nil, err
			}
			similarity = cosineSimilarity(vec, missionVec)
		}

		scored = append(scored, &grants.Scored{
			Candidate:  *candidate,
			Similarity: similarity,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})

	if len(scored) > r.config.Top {
		scored = scored[:r.config.Top]
	}

	if len(scored) > 0 {
		log.Info("ranked candidates",
			zap.Int("shortlisted", len(scored)),
			zap.Float64("best_similarity", scored[0].Similarity),
			zap.String("best_title", scored[0].Title),
		)
	}

	return scored, nil
}

// cosineSimilarity is dot(a,b)/(|a|*|b|). A zero vector, the embedding
// fallback, scores exactly 0 instead of dividing by zero. Mismatched lengths
// also score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
