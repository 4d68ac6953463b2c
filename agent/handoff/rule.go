package handoff

import (
	"fmt"

	"github.com/relaykit/relay/config"
)

// Rule associates an agent with its handoff triggers. Rules are built from
// static configuration and immutable afterwards. Trigger order is
// irrelevant; Threshold is the minimum match score (in [0,1]) a message
// must reach before the conversation is handed off to Agent.
type Rule struct {
	Agent     string
	Triggers  []string
	Threshold float64
}

// RulesFromConfig builds the per-agent rule map from the configured agent
// declarations, applying the routing default threshold where an agent does
// not set its own.
func RulesFromConfig(cfg *config.Config) (map[string]Rule, error) {
	rules := make(map[string]Rule, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if _, dup := rules[a.Name]; dup {
			return nil, fmt.Errorf("duplicate rule for agent %q", a.Name)
		}
		rules[a.Name] = Rule{
			Agent:     a.Name,
			Triggers:  append([]string(nil), a.Triggers...),
			Threshold: cfg.Threshold(a),
		}
	}
	return rules, nil
}
