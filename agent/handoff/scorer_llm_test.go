package handoff

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockCompleter implements Completer with a function callback.
type mockCompleter struct {
	completeFn func(ctx context.Context, prompt string) (string, error)
	calls      int
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.completeFn != nil {
		return m.completeFn(ctx, prompt)
	}
	return `{"confidence": 0.5}`, nil
}

func TestLLMScorer_ParsesConfidence(t *testing.T) {
	completer := &mockCompleter{
		completeFn: func(_ context.Context, prompt string) (string, error) {
			assert.Contains(t, prompt, "payment")
			assert.Contains(t, prompt, "having trouble with payment")
			return `{"confidence": 0.87}`, nil
		},
	}
	s := NewLLMScorer(completer, LLMScorerConfig{}, zap.NewNop())

	score, err := s.Score(context.Background(), "having trouble with payment",
		Rule{Agent: "billing", Triggers: []string{"payment", "invoice"}})
	require.NoError(t, err)
	assert.Equal(t, 0.87, score)
}

func TestLLMScorer_ToleratesSurroundingProse(t *testing.T) {
	completer := &mockCompleter{
		completeFn: func(context.Context, string) (string, error) {
			return "Sure! Here you go:\n```json\n{\"confidence\": 0.42}\n```", nil
		},
	}
	s := NewLLMScorer(completer, LLMScorerConfig{}, zap.NewNop())

	score, err := s.Score(context.Background(), "msg", Rule{Agent: "a", Triggers: []string{"t"}})
	require.NoError(t, err)
	assert.Equal(t, 0.42, score)
}

func TestLLMScorer_ClampsOutOfRange(t *testing.T) {
	completer := &mockCompleter{
		completeFn: func(context.Context, string) (string, error) {
			return `{"confidence": 3.5}`, nil
		},
	}
	s := NewLLMScorer(completer, LLMScorerConfig{}, zap.NewNop())

	score, err := s.Score(context.Background(), "msg", Rule{Agent: "a", Triggers: []string{"t"}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)
}

func TestLLMScorer_ErrorPaths(t *testing.T) {
	t.Run("no completer", func(t *testing.T) {
		s := NewLLMScorer(nil, LLMScorerConfig{}, nil)
		_, err := s.Score(context.Background(), "msg", Rule{})
		assert.Error(t, err)
	})

	t.Run("completion failure", func(t *testing.T) {
		completer := &mockCompleter{
			completeFn: func(context.Context, string) (string, error) {
				return "", errors.New("upstream down")
			},
		}
		s := NewLLMScorer(completer, LLMScorerConfig{}, zap.NewNop())
		_, err := s.Score(context.Background(), "msg", Rule{})
		assert.Error(t, err)
	})

	t.Run("garbage reply", func(t *testing.T) {
		completer := &mockCompleter{
			completeFn: func(context.Context, string) (string, error) {
				return "I cannot answer that", nil
			},
		}
		s := NewLLMScorer(completer, LLMScorerConfig{}, zap.NewNop())
		_, err := s.Score(context.Background(), "msg", Rule{})
		assert.Error(t, err)
	})
}

func TestLLMScorer_RateLimiterCancellation(t *testing.T) {
	completer := &mockCompleter{}
	// One request per hour with burst 1: the second call must wait and the
	// cancelled context should surface as an error.
	s := NewLLMScorer(completer, LLMScorerConfig{RequestsPerSecond: 1.0 / 3600, Burst: 1}, zap.NewNop())

	_, err := s.Score(context.Background(), "first", Rule{Agent: "a", Triggers: []string{"t"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Score(ctx, "second", Rule{Agent: "a", Triggers: []string{"t"}})
	assert.Error(t, err)
	assert.Equal(t, 1, completer.calls)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`prefix {"a":1} suffix`))
	assert.Equal(t, `{"a":{"b":2}}`, extractJSON(`{"a":{"b":2}} trailing`))
	assert.Equal(t, "no braces", extractJSON("no braces"))
}
