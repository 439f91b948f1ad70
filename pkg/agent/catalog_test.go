package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	t.Run("keeps registration order", func(t *testing.T) {
		c, err := NewCatalog(&Agent{Name: "zeta"}, &Agent{Name: "alpha"})
		require.NoError(t, err)

		assert.Equal(t, 2, c.Len())
		assert.Equal(t, []string{"zeta", "alpha"}, c.Names())
		assert.Equal(t, "zeta", c.List()[0].Name)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		_, err := NewCatalog(&Agent{Name: "a"}, &Agent{Name: "a"})
		assert.Error(t, err)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewCatalog(&Agent{})
		assert.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		c, err := NewCatalog()
		require.NoError(t, err)
		assert.Zero(t, c.Len())
		assert.Empty(t, c.List())
	})
}

func TestCatalog_Get(t *testing.T) {
	calc := &Agent{Name: "calc"}
	c, err := NewCatalog(calc)
	require.NoError(t, err)

	got, ok := c.Get("calc")
	assert.True(t, ok)
	assert.Same(t, calc, got)

	_, ok = c.Get("Calc")
	assert.False(t, ok, "lookup is case-sensitive")
}

func TestCatalog_Replace(t *testing.T) {
	old := &Agent{Name: "old"}
	c, err := NewCatalog(old)
	require.NoError(t, err)

	require.NoError(t, c.Replace([]*Agent{{Name: "new"}}))
	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)

	// A failed replace leaves the catalog untouched
	assert.Error(t, c.Replace([]*Agent{{Name: "x"}, {Name: "x"}}))
	assert.Equal(t, []string{"new"}, c.Names())
}
