package handoff

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/relaykit/relay/agent"
	"github.com/relaykit/relay/internal/metrics"
)

// Decision is the outcome of routing one message. When Changed is false,
// From and To are equal and the conversation stays with the active agent.
type Decision struct {
	SessionID string             `json:"session_id"`
	From      string             `json:"from"`
	To        string             `json:"to"`
	Changed   bool               `json:"changed"`
	Score     float64            `json:"score"`
	Threshold float64            `json:"threshold"`
	Scores    map[string]float64 `json:"scores,omitempty"`
	Reason    string             `json:"reason"`
	At        time.Time          `json:"at"`
}

// Record is one audit entry for a completed handoff.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	At        time.Time `json:"at"`
}

// RouterConfig configures the router.
type RouterConfig struct {
	// MaxRecords bounds the in-memory handoff audit trail (default 256).
	MaxRecords int
}

// Router decides, per incoming message, whether the active agent keeps the
// conversation or hands it off. Candidates are every registered agent other
// than the active one; a candidate wins when its score meets its rule's
// threshold. Among multiple qualifying candidates the largest margin above
// threshold wins, with the lexicographically smaller name as a
// deterministic tiebreaker.
type Router struct {
	registry  *agent.Registry
	rules     map[string]Rule
	scorer    Scorer
	cfg       RouterConfig
	collector *metrics.Collector
	logger    *zap.Logger
	tracer    trace.Tracer

	mu      sync.RWMutex
	records []Record
	subs    map[int]chan Decision
	nextSub int
}

// NewRouter creates a router. collector may be nil.
func NewRouter(registry *agent.Registry, rules map[string]Rule, scorer Scorer, cfg RouterConfig, collector *metrics.Collector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 256
	}
	return &Router{
		registry:  registry,
		rules:     rules,
		scorer:    scorer,
		cfg:       cfg,
		collector: collector,
		logger:    logger.With(zap.String("component", "handoff_router")),
		tracer:    otel.Tracer("github.com/relaykit/relay/agent/handoff"),
		subs:      make(map[int]chan Decision),
	}
}

// Route scores the message against every candidate agent's trigger set and
// returns the routing decision. A scorer failure for one candidate demotes
// that candidate to score 0 rather than failing the whole decision; when no
// candidate qualifies the active agent keeps the conversation.
func (r *Router) Route(ctx context.Context, sessionID, activeAgent, message string) (*Decision, error) {
	ctx, span := r.tracer.Start(ctx, "handoff.route",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("agent.active", activeAgent),
		),
	)
	defer span.End()

	start := time.Now()

	if _, ok := r.registry.Get(activeAgent); !ok {
		return nil, fmt.Errorf("active agent not registered: %s", activeAgent)
	}

	decision := &Decision{
		SessionID: sessionID,
		From:      activeAgent,
		To:        activeAgent,
		Scores:    make(map[string]float64, len(r.rules)),
		Reason:    "no candidate met threshold",
		At:        start,
	}

	bestMargin := 0.0
	for _, name := range r.candidates(activeAgent) {
		rule := r.rules[name]

		score, err := r.scorer.Score(ctx, message, rule)
		if err != nil {
			r.logger.Warn("scoring failed, candidate skipped",
				zap.String("agent", name),
				zap.Error(err),
			)
			score = 0
		}
		decision.Scores[name] = score
		if r.collector != nil {
			r.collector.ObserveScore(name, score)
		}

		if score < rule.Threshold {
			continue
		}
		margin := score - rule.Threshold
		if !decision.Changed || margin > bestMargin {
			decision.Changed = true
			decision.To = name
			decision.Score = score
			decision.Threshold = rule.Threshold
			decision.Reason = "trigger threshold met"
			bestMargin = margin
		}
	}

	span.SetAttributes(
		attribute.String("agent.next", decision.To),
		attribute.Bool("handoff.changed", decision.Changed),
		attribute.Float64("handoff.score", decision.Score),
	)

	if r.collector != nil {
		r.collector.ObserveRouteDecision(decision.From, decision.To, decision.Changed, time.Since(start))
	}

	if decision.Changed {
		r.logger.Info("handoff",
			zap.String("session_id", sessionID),
			zap.String("from", decision.From),
			zap.String("to", decision.To),
			zap.Float64("score", decision.Score),
			zap.Float64("threshold", decision.Threshold),
		)
		r.record(decision)
		r.publish(*decision)
	} else {
		r.logger.Debug("no handoff",
			zap.String("session_id", sessionID),
			zap.String("agent", activeAgent),
		)
	}

	return decision, nil
}

// candidates returns every ruled agent except the active one, in sorted
// order so equal margins resolve to the lexicographically smaller name.
func (r *Router) candidates(activeAgent string) []string {
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		if name == activeAgent {
			continue
		}
		if _, ok := r.registry.Get(name); !ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) record(d *Decision) {
	rec := Record{
		ID:        "hoff_" + uuid.NewString(),
		SessionID: d.SessionID,
		From:      d.From,
		To:        d.To,
		Score:     d.Score,
		Threshold: d.Threshold,
		At:        d.At,
	}
	r.mu.Lock()
	r.records = append(r.records, rec)
	if len(r.records) > r.cfg.MaxRecords {
		r.records = r.records[len(r.records)-r.cfg.MaxRecords:]
	}
	r.mu.Unlock()
}

// Records returns the audit trail for a session, oldest first. An empty
// sessionID returns all retained records.
func (r *Router) Records(sessionID string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		if sessionID == "" || rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}

// Subscribe registers a handoff event listener. The returned cancel func
// must be called to release the subscription. Slow consumers miss events
// rather than blocking routing.
func (r *Router) Subscribe() (<-chan Decision, func()) {
	ch := make(chan Decision, 16)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if sub, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(sub)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Router) publish(d Decision) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- d:
		default:
		}
	}
}
