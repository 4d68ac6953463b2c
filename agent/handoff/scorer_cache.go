package handoff

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// ScoreCache is the cache contract used by CachedScorer. A miss returns
// ok=false with a nil error; cache failures are soft and never fail a
// routing decision. internal/cache.Manager satisfies this interface.
type ScoreCache interface {
	GetScore(ctx context.Context, key string) (float64, bool, error)
	SetScore(ctx context.Context, key string, score float64) error
}

// CachedScorer memoizes another scorer's results. Meant for the llm and
// embedding strategies where a score costs a network round-trip; the
// keyword and regex strategies are cheaper than the cache itself.
type CachedScorer struct {
	inner  Scorer
	cache  ScoreCache
	logger *zap.Logger
}

// NewCachedScorer wraps inner with cache.
func NewCachedScorer(inner Scorer, cache ScoreCache, logger *zap.Logger) *CachedScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScorer{
		inner:  inner,
		cache:  cache,
		logger: logger.With(zap.String("component", "cached_scorer")),
	}
}

// Score implements Scorer.
func (s *CachedScorer) Score(ctx context.Context, message string, rule Rule) (float64, error) {
	key := scoreCacheKey(s.inner, message, rule)

	if score, ok, err := s.cache.GetScore(ctx, key); err != nil {
		s.logger.Warn("score cache get failed", zap.Error(err))
	} else if ok {
		return score, nil
	}

	score, err := s.inner.Score(ctx, message, rule)
	if err != nil {
		return 0, err
	}

	if err := s.cache.SetScore(ctx, key, score); err != nil {
		s.logger.Warn("score cache set failed", zap.Error(err))
	}
	return score, nil
}

// scoreCacheKey hashes the scorer kind, message, and rule so a config
// change (new triggers, different strategy) never reads stale entries.
func scoreCacheKey(inner Scorer, message string, rule Rule) string {
	h := sha256.New()
	h.Write([]byte(Name(inner)))
	h.Write([]byte{0})
	h.Write([]byte(message))
	h.Write([]byte{0})
	h.Write([]byte(rule.Agent))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(rule.Triggers, "\x00")))
	return "score:" + hex.EncodeToString(h.Sum(nil))
}
