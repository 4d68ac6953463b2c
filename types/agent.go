package types

import "context"

// Replier is an optional interface for agents that can produce a reply to
// the conversation so far. The framework never calls LLMs itself; callers
// plug in their own Replier implementations and invoke them for whichever
// agent owns the session after routing.
type Replier interface {
	// Reply produces the agent's next message given the history.
	Reply(ctx context.Context, history []Message) (Message, error)
}
