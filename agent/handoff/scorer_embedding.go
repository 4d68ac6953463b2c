package handoff

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Embedder is the minimal embedding contract the similarity strategy needs.
type Embedder interface {
	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingScorer scores by cosine similarity between the message embedding
// and the centroid of the rule's trigger embeddings. Cosine similarity in
// [-1,1] is mapped to [0,1] so thresholds share a domain with the other
// strategies. Trigger centroids are computed once per rule and cached.
type EmbeddingScorer struct {
	embedder  Embedder
	centroids sync.Map // rule key -> []float32
}

// NewEmbeddingScorer creates an embedding-similarity scoring strategy.
func NewEmbeddingScorer(embedder Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score implements Scorer.
func (s *EmbeddingScorer) Score(ctx context.Context, message string, rule Rule) (float64, error) {
	if s.embedder == nil {
		return 0, fmt.Errorf("embedding scorer: no embedder configured")
	}
	if len(rule.Triggers) == 0 {
		return 0, nil
	}

	var msgVec, centroid []float32

	// Message embedding and trigger centroid are independent calls.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecs, err := s.embedder.Embed(gctx, []string{message})
		if err != nil {
			return fmt.Errorf("embed message: %w", err)
		}
		if len(vecs) != 1 {
			return fmt.Errorf("embed message: expected 1 vector, got %d", len(vecs))
		}
		msgVec = vecs[0]
		return nil
	})
	g.Go(func() error {
		c, err := s.ruleCentroid(gctx, rule)
		if err != nil {
			return err
		}
		centroid = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	cos, err := cosine(msgVec, centroid)
	if err != nil {
		return 0, fmt.Errorf("embedding scorer: %w", err)
	}
	return (cos + 1) / 2, nil
}

func (s *EmbeddingScorer) ruleCentroid(ctx context.Context, rule Rule) ([]float32, error) {
	key := rule.Agent + "\x00" + strings.Join(rule.Triggers, "\x00")
	if v, ok := s.centroids.Load(key); ok {
		return v.([]float32), nil
	}

	vecs, err := s.embedder.Embed(ctx, rule.Triggers)
	if err != nil {
		return nil, fmt.Errorf("embed triggers for %s: %w", rule.Agent, err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed triggers for %s: no vectors returned", rule.Agent)
	}

	dim := len(vecs[0])
	centroid := make([]float32, dim)
	for _, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("embed triggers for %s: inconsistent dimensions", rule.Agent)
		}
		for i, x := range v {
			centroid[i] += x
		}
	}
	for i := range centroid {
		centroid[i] /= float32(len(vecs))
	}

	s.centroids.Store(key, centroid)
	return centroid, nil
}

func cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
