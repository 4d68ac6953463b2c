// Package session manages conversation sessions: the active agent, the
// append-only message history, and the bounded context window handed to
// agents. Three Store implementations are provided: in-memory for tests
// and single-process deployments, Redis for distributed deployments, and
// a GORM-backed store for durable history.
package session
