package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%")

	assert.True(t, m.Enabled("always", 1))
	assert.True(t, m.EnabledGlobally("always"))
	assert.False(t, m.Enabled("never", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout evaluation must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0))
	assert.False(t, m.EnabledGlobally("canary"))

	enabled := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("canary", id) {
			enabled++
		}
	}
	assert.InDelta(t, 250, enabled, 80)
}

func TestNewManager_IgnoresMalformedEntries(t *testing.T) {
	m := NewManager(" bad ,X=on, y = 20% ,z=maybe,=on,w=abc% ")

	assert.True(t, m.Enabled("x", 1))
	assert.Len(t, m.rules, 2)
	assert.False(t, m.Enabled("z", 1))
}

func TestDefaultFlags(t *testing.T) {
	m := NewManager("read_on_view=on,expiry_sweep=on")
	assert.True(t, m.EnabledGlobally(ReadOnView))
	assert.True(t, m.EnabledGlobally(ExpirySweep))

	var nilManager *Manager
	assert.False(t, nilManager.Enabled(ReadOnView, 1))
}
