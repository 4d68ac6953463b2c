package session

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/relaykit/relay/config"
	"github.com/relaykit/relay/types"
)

// perMessageOverhead approximates the framing tokens around each chat
// message in OpenAI-style prompts.
const perMessageOverhead = 4

// Trimmer bounds the context window handed to agents. Stored history is
// never touched; Trim only selects the suffix of messages that fits the
// configured limits. A zero limit disables that bound.
type Trimmer struct {
	maxMessages int
	tokenBudget int
	encoding    string
	logger      *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTrimmer builds a trimmer from session configuration. TrimModel names
// the model whose encoding counts tokens; unknown models fall back to
// cl100k_base.
func NewTrimmer(cfg config.SessionConfig, logger *zap.Logger) *Trimmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding := "cl100k_base"
	if cfg.TrimModel != "" {
		if enc, err := tiktoken.EncodingForModel(cfg.TrimModel); err == nil {
			return &Trimmer{
				maxMessages: cfg.MaxMessages,
				tokenBudget: cfg.TokenBudget,
				encoding:    "",
				logger:      logger.With(zap.String("component", "session_trimmer")),
				enc:         enc,
			}
		}
		logger.Warn("unknown trim model, falling back to cl100k_base",
			zap.String("model", cfg.TrimModel),
		)
	}
	return &Trimmer{
		maxMessages: cfg.MaxMessages,
		tokenBudget: cfg.TokenBudget,
		encoding:    encoding,
		logger:      logger.With(zap.String("component", "session_trimmer")),
	}
}

// init lazily loads the encoding (the first call may download data).
func (t *Trimmer) init() error {
	t.once.Do(func() {
		if t.enc != nil {
			return
		}
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// countTokens estimates the prompt cost of one message. When the encoding
// is unavailable a rough bytes/4 heuristic keeps trimming functional.
func (t *Trimmer) countTokens(msg types.Message) int {
	if err := t.init(); err != nil {
		return len(msg.Content)/4 + perMessageOverhead
	}
	n := len(t.enc.Encode(msg.Content, nil, nil))
	n += len(t.enc.Encode(string(msg.Role), nil, nil))
	return n + perMessageOverhead
}

// Trim returns the most recent messages that fit both MaxMessages and
// TokenBudget. The input slice is not modified; the returned slice
// preserves relative order.
func (t *Trimmer) Trim(messages []types.Message) []types.Message {
	out := messages
	if t.maxMessages > 0 && len(out) > t.maxMessages {
		out = out[len(out)-t.maxMessages:]
	}

	if t.tokenBudget > 0 {
		total := 0
		start := len(out)
		for i := len(out) - 1; i >= 0; i-- {
			cost := t.countTokens(out[i])
			if total+cost > t.tokenBudget {
				break
			}
			total += cost
			start = i
		}
		out = out[start:]
	}

	if len(out) < len(messages) {
		t.logger.Debug("context window trimmed",
			zap.Int("history", len(messages)),
			zap.Int("window", len(out)),
		)
	}
	return out
}
