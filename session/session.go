package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/relay/types"
)

// Session is one conversation. Messages is append-only: stores never drop
// or rewrite history, they only add to it. ActiveAgent is the agent that
// currently owns the conversation and is updated on handoff.
type Session struct {
	ID          string          `json:"id"`
	ActiveAgent string          `json:"active_agent"`
	Messages    []types.Message `json:"messages"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// New creates a session owned by activeAgent.
func New(activeAgent string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          "sess_" + uuid.NewString(),
		ActiveAgent: activeAgent,
		Messages:    []types.Message{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy safe to hand to callers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Messages = append([]types.Message(nil), s.Messages...)
	return &cp
}

// Store persists sessions. Get returns a copy; mutating the result does
// not affect the stored session. A missing session surfaces as a
// *types.Error with code ErrSessionNotFound.
type Store interface {
	// Create persists a new session owned by activeAgent and returns it.
	Create(ctx context.Context, activeAgent string) (*Session, error)

	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// AppendMessage appends msg to the session's history.
	AppendMessage(ctx context.Context, id string, msg types.Message) error

	// SetActiveAgent records a handoff: the session is now owned by agent.
	SetActiveAgent(ctx context.Context, id, agent string) error

	// Delete removes a session and its history.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all live sessions.
	List(ctx context.Context) ([]string, error)

	// Ping checks store health.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

func notFound(id string) error {
	return types.NewError(types.ErrSessionNotFound, "session not found: "+id).
		WithHTTPStatus(404)
}
