// Package handoff implements trigger-and-threshold conversational handoff
// routing: given an incoming message and the currently active agent, it
// decides whether the conversation stays with the active agent or is handed
// off to another specialized agent.
//
// Each agent carries a Rule (a set of trigger keywords/phrases plus a
// confidence threshold). How a message is scored against a trigger set is
// deliberately pluggable via the Scorer interface; the package ships
// keyword, regex, LLM-classifier, and embedding strategies.
package handoff
