package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Completer is the minimal LLM contract the classifier strategy needs.
// Callers plug in their own provider; this package never constructs one.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMScorerConfig configures the classifier strategy.
type LLMScorerConfig struct {
	// RequestsPerSecond bounds classifier calls; zero disables limiting.
	RequestsPerSecond float64
	// Burst is the limiter burst size, defaulted to 1 when limiting is on.
	Burst int
}

// LLMScorer asks a classifier model how strongly a message matches an
// agent's trigger set and parses the confidence out of a JSON reply.
// Classifier failures surface as errors; Router falls back to keeping the
// active agent in that case.
type LLMScorer struct {
	completer Completer
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewLLMScorer creates a classifier-backed scoring strategy.
func NewLLMScorer(completer Completer, cfg LLMScorerConfig, logger *zap.Logger) *LLMScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &LLMScorer{
		completer: completer,
		limiter:   limiter,
		logger:    logger.With(zap.String("component", "llm_scorer")),
	}
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, message string, rule Rule) (float64, error) {
	if s.completer == nil {
		return 0, fmt.Errorf("llm scorer: no completer configured")
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("llm scorer: rate limit wait: %w", err)
		}
	}

	prompt := buildScoringPrompt(message, rule)
	reply, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("llm scorer: completion: %w", err)
	}

	score, err := parseConfidence(reply)
	if err != nil {
		s.logger.Warn("unparseable classifier reply",
			zap.String("agent", rule.Agent),
			zap.String("reply", truncate(reply, 200)),
		)
		return 0, fmt.Errorf("llm scorer: %w", err)
	}
	return score, nil
}

func buildScoringPrompt(message string, rule Rule) string {
	var b strings.Builder
	b.WriteString("Rate how strongly the user message matches the topic described by these trigger keywords.\n")
	b.WriteString("Triggers: ")
	b.WriteString(strings.Join(rule.Triggers, ", "))
	b.WriteString("\n\nUser message: ")
	b.WriteString(message)
	b.WriteString("\n\nRespond with JSON: {\"confidence\": 0.0-1.0}")
	return b.String()
}

// parseConfidence extracts the confidence value from a classifier reply,
// tolerating surrounding prose or a fenced code block around the JSON.
func parseConfidence(reply string) (float64, error) {
	jsonPart := extractJSON(reply)
	var parsed struct {
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(jsonPart), &parsed); err != nil {
		return 0, fmt.Errorf("parse confidence: %w", err)
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return parsed.Confidence, nil
}

// extractJSON returns the first balanced {...} object in the text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return text
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
