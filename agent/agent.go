// Package agent provides the immutable agent definition and the registry
// that routing decisions resolve agent names against.
package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/relaykit/relay/config"
)

// Agent is a named conversational specialist: an instruction describing its
// role plus the named external tool-provider servers it may call. Agents are
// built once at startup and never mutated afterwards.
type Agent struct {
	name        string
	instruction string
	servers     []string
}

// New creates an agent. The servers slice is copied so later mutation by the
// caller cannot leak into the agent.
func New(name, instruction string, servers []string) (*Agent, error) {
	if name == "" {
		return nil, fmt.Errorf("agent name must not be empty")
	}
	return &Agent{
		name:        name,
		instruction: instruction,
		servers:     append([]string(nil), servers...),
	}, nil
}

// FromConfig builds an agent from its declaration.
func FromConfig(cfg config.AgentConfig) (*Agent, error) {
	return New(cfg.Name, cfg.Instruction, cfg.Servers)
}

// Name returns the agent's unique name.
func (a *Agent) Name() string { return a.name }

// Instruction returns the agent's role description.
func (a *Agent) Instruction() string { return a.instruction }

// Servers returns a copy of the agent's tool-provider server names.
func (a *Agent) Servers() []string {
	return append([]string(nil), a.servers...)
}

// Registry holds all agents known to the router, keyed by name.
type Registry struct {
	agents map[string]*Agent
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger.With(zap.String("component", "agent_registry")),
	}
}

// Register adds an agent. Registering a duplicate name is an error since
// agents are immutable for the run.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Name()]; exists {
		return fmt.Errorf("agent already registered: %s", a.Name())
	}
	r.agents[a.Name()] = a
	r.logger.Info("registered agent",
		zap.String("name", a.Name()),
		zap.Strings("servers", a.servers),
	)
	return nil
}

// Get returns the agent with the given name.
func (r *Registry) Get(name string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Names returns all registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered agents ordered by name.
func (r *Registry) List() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agents := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].name < agents[j].name })
	return agents
}

// FromConfigs builds a registry from the configured agent declarations.
func FromConfigs(cfgs []config.AgentConfig, logger *zap.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, c := range cfgs {
		a, err := FromConfig(c)
		if err != nil {
			return nil, fmt.Errorf("build agent %q: %w", c.Name, err)
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
