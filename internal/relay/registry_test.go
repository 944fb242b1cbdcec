package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BindAndUnbind(t *testing.T) {
	g := newRegistry()
	c1, c2 := newConn("c1"), newConn("c2")

	assert.Nil(t, g.bind("A1", c1))
	assert.Nil(t, g.bind("B1", c2))
	assert.Equal(t, 2, g.len())

	id, ok := g.device(c1)
	require.True(t, ok)
	assert.Equal(t, "A1", id)

	id, ok = g.unbindConn(c1)
	require.True(t, ok)
	assert.Equal(t, "A1", id)
	_, ok = g.conn("A1")
	assert.False(t, ok)

	c, ok := g.unbindDevice("B1")
	require.True(t, ok)
	assert.Same(t, c2, c)
	assert.Zero(t, g.len())
}

func TestRegistry_BindDisplacesPreviousConnection(t *testing.T) {
	g := newRegistry()
	c1, c2 := newConn("c1"), newConn("c2")
	g.bind("A1", c1)

	old := g.bind("A1", c2)

	assert.Same(t, c1, old)
	_, ok := g.device(c1)
	assert.False(t, ok)
	assert.Equal(t, 1, g.len())

	// Rebinding the same pair displaces nothing.
	assert.Nil(t, g.bind("A1", c2))
}

func TestRegistry_ConnectionSwitchingDevice(t *testing.T) {
	g := newRegistry()
	c := newConn("c1")
	g.bind("A1", c)

	assert.Nil(t, g.bind("B1", c))

	_, ok := g.conn("A1")
	assert.False(t, ok)
	id, _ := g.device(c)
	assert.Equal(t, "B1", id)
	assert.Equal(t, 1, g.len())
}

func TestRegistry_ConnsOrderedByID(t *testing.T) {
	g := newRegistry()
	g.bind("A1", newConn("c3"))
	g.bind("B1", newConn("c1"))
	g.bind("C1", newConn("c2"))

	var ids []string
	for _, c := range g.conns() {
		ids = append(ids, c.ID())
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
}
