package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relaykit/relay/config"
)

func TestNew_Immutability(t *testing.T) {
	servers := []string{"crm", "docs"}
	a, err := New("sales", "You handle pre-sales questions.", servers)
	require.NoError(t, err)

	// Mutating the input slice must not affect the agent.
	servers[0] = "mutated"
	assert.Equal(t, []string{"crm", "docs"}, a.Servers())

	// Mutating the returned copy must not affect the agent either.
	got := a.Servers()
	got[1] = "mutated"
	assert.Equal(t, []string{"crm", "docs"}, a.Servers())

	assert.Equal(t, "sales", a.Name())
	assert.Equal(t, "You handle pre-sales questions.", a.Instruction())
}

func TestNew_EmptyName(t *testing.T) {
	_, err := New("", "instruction", nil)
	assert.Error(t, err)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	sales, err := New("sales", "sales instruction", []string{"crm"})
	require.NoError(t, err)
	billing, err := New("billing", "billing instruction", []string{"stripe"})
	require.NoError(t, err)

	require.NoError(t, reg.Register(sales))
	require.NoError(t, reg.Register(billing))

	got, ok := reg.Get("billing")
	require.True(t, ok)
	assert.Equal(t, "billing", got.Name())

	_, ok = reg.Get("support")
	assert.False(t, ok)

	assert.Equal(t, []string{"billing", "sales"}, reg.Names())
	assert.Len(t, reg.List(), 2)
}

func TestRegistry_DuplicateName(t *testing.T) {
	reg := NewRegistry(nil)

	a, err := New("sales", "", nil)
	require.NoError(t, err)
	require.NoError(t, reg.Register(a))

	dup, err := New("sales", "other", nil)
	require.NoError(t, err)
	assert.Error(t, reg.Register(dup))
}

func TestFromConfigs(t *testing.T) {
	cfgs := []config.AgentConfig{
		{Name: "sales", Instruction: "sell", Servers: []string{"crm"}},
		{Name: "billing", Instruction: "bill", Servers: []string{"stripe"}},
	}

	reg, err := FromConfigs(cfgs, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"billing", "sales"}, reg.Names())

	_, err = FromConfigs([]config.AgentConfig{{Name: ""}}, nil)
	assert.Error(t, err)
}
