package handoff

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Scorer computes a match score in [0,1] between a message and an agent's
// trigger set. How confidence is derived is a strategy decision; Router
// treats the score as opaque and only compares it against the rule's
// threshold.
type Scorer interface {
	// Score returns the confidence that the message belongs to the agent
	// described by the rule.
	Score(ctx context.Context, message string, rule Rule) (float64, error)
}

// Name returns a stable identifier for known scorer implementations, used
// for cache keys and log fields. Unknown scorers report "custom".
func Name(s Scorer) string {
	switch s.(type) {
	case *KeywordScorer:
		return "keyword"
	case *RegexScorer:
		return "regex"
	case *LLMScorer:
		return "llm"
	case *EmbeddingScorer:
		return "embedding"
	case *CachedScorer:
		return "cached"
	default:
		return "custom"
	}
}

// =============================================================================
// KeywordScorer
// =============================================================================

// KeywordScorer scores by trigger-phrase containment. The message is
// lowercased and split on non-alphanumeric runes; each trigger phrase
// contributes the fraction of its tokens found as a contiguous run in the
// message, and the final score is the best trigger's fraction. A fully
// present trigger therefore scores 1.0 regardless of how many other
// triggers the rule carries.
type KeywordScorer struct{}

// NewKeywordScorer creates the default scoring strategy.
func NewKeywordScorer() *KeywordScorer { return &KeywordScorer{} }

// Score implements Scorer.
func (s *KeywordScorer) Score(_ context.Context, message string, rule Rule) (float64, error) {
	msgTokens := tokenize(message)
	if len(msgTokens) == 0 || len(rule.Triggers) == 0 {
		return 0, nil
	}

	best := 0.0
	for _, trigger := range rule.Triggers {
		trigTokens := tokenize(trigger)
		if len(trigTokens) == 0 {
			continue
		}
		run := longestRun(msgTokens, trigTokens)
		score := float64(run) / float64(len(trigTokens))
		if score > best {
			best = score
		}
		if best == 1.0 {
			break
		}
	}
	return best, nil
}

// tokenize lowercases and splits text on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// longestRun returns the length of the longest prefix-aligned contiguous
// run of phrase tokens found anywhere in msg.
func longestRun(msg, phrase []string) int {
	best := 0
	for i := range msg {
		n := 0
		for n < len(phrase) && i+n < len(msg) && msg[i+n] == phrase[n] {
			n++
		}
		if n > best {
			best = n
		}
		if best == len(phrase) {
			break
		}
	}
	return best
}

// =============================================================================
// RegexScorer
// =============================================================================

// RegexScorer treats each trigger as a regular expression. The score is the
// fraction of trigger patterns that match the message: a rule with four
// patterns of which two match scores 0.5. Patterns are compiled once and
// cached; an invalid pattern fails the score call rather than being
// silently skipped.
type RegexScorer struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

// NewRegexScorer creates a regex-based scoring strategy.
func NewRegexScorer() *RegexScorer {
	return &RegexScorer{compiled: make(map[string]*regexp.Regexp)}
}

// Score implements Scorer.
func (s *RegexScorer) Score(_ context.Context, message string, rule Rule) (float64, error) {
	if len(rule.Triggers) == 0 {
		return 0, nil
	}

	matched := 0
	for _, pattern := range rule.Triggers {
		re, err := s.compile(pattern)
		if err != nil {
			return 0, fmt.Errorf("trigger pattern %q for agent %s: %w", pattern, rule.Agent, err)
		}
		if re.MatchString(message) {
			matched++
		}
	}
	return float64(matched) / float64(len(rule.Triggers)), nil
}

func (s *RegexScorer) compile(pattern string) (*regexp.Regexp, error) {
	s.mu.RLock()
	re, ok := s.compiled[pattern]
	s.mu.RUnlock()
	if ok {
		return re, nil
	}

	// Case-insensitive by default, matching the keyword strategy.
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.compiled[pattern] = re
	s.mu.Unlock()
	return re, nil
}
