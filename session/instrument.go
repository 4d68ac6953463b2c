package session

import (
	"context"
	"time"

	"github.com/relaykit/relay/types"
)

// StoreMetrics receives operation timings and the open-session gauge.
// *metrics.Collector satisfies it.
type StoreMetrics interface {
	ObserveSessionOp(store, op string, duration time.Duration, err error)
	SetSessionsOpen(store string, n float64)
}

// InstrumentedStore decorates a Store with per-operation latency and
// error metrics. The open-session gauge is refreshed from the backend
// after every create and delete, so it stays correct when several
// instances share the same store.
type InstrumentedStore struct {
	inner   Store
	name    string
	metrics StoreMetrics
}

// NewInstrumentedStore wraps inner, reporting metrics under the given
// store name (memory, redis, database).
func NewInstrumentedStore(inner Store, name string, metrics StoreMetrics) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, name: name, metrics: metrics}
}

func (s *InstrumentedStore) observe(op string, start time.Time, err error) {
	s.metrics.ObserveSessionOp(s.name, op, time.Since(start), err)
}

func (s *InstrumentedStore) refreshGauge(ctx context.Context) {
	ids, err := s.inner.List(ctx)
	if err != nil {
		return
	}
	s.metrics.SetSessionsOpen(s.name, float64(len(ids)))
}

func (s *InstrumentedStore) Create(ctx context.Context, activeAgent string) (*Session, error) {
	start := time.Now()
	sess, err := s.inner.Create(ctx, activeAgent)
	s.observe("create", start, err)
	if err == nil {
		s.refreshGauge(ctx)
	}
	return sess, err
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (*Session, error) {
	start := time.Now()
	sess, err := s.inner.Get(ctx, id)
	s.observe("get", start, err)
	return sess, err
}

func (s *InstrumentedStore) AppendMessage(ctx context.Context, id string, msg types.Message) error {
	start := time.Now()
	err := s.inner.AppendMessage(ctx, id, msg)
	s.observe("append", start, err)
	return err
}

func (s *InstrumentedStore) SetActiveAgent(ctx context.Context, id, agent string) error {
	start := time.Now()
	err := s.inner.SetActiveAgent(ctx, id, agent)
	s.observe("set_active_agent", start, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, id)
	s.observe("delete", start, err)
	if err == nil {
		s.refreshGauge(ctx)
	}
	return err
}

func (s *InstrumentedStore) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := s.inner.List(ctx)
	s.observe("list", start, err)
	if err == nil {
		s.metrics.SetSessionsOpen(s.name, float64(len(ids)))
	}
	return ids, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

var _ Store = (*InstrumentedStore)(nil)
