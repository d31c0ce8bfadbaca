package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU(10)

	c.Set("tenant", "t1", "config", "v1")
	e, ok := c.Get("tenant", "t1", "config")
	require.True(t, ok)
	assert.Equal(t, "v1", e.Value)

	// Scopes are isolated.
	_, ok = c.Get("tenant", "t2", "config")
	assert.False(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU(10)

	c.Set("tenant", "t1", "short", 1, WithTTL(10*time.Millisecond))
	c.Set("tenant", "t1", "long", 2, WithTTL(time.Hour))

	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("tenant", "t1", "short")
	assert.False(t, ok, "expired entry must not be returned")

	e, ok := c.Get("tenant", "t1", "long")
	require.True(t, ok)
	assert.Equal(t, 2, e.Value)
}

func TestLRU_EvictsOldestPerScope(t *testing.T) {
	c := NewLRU(2)

	c.Set("tenant", "t1", "a", 1)
	c.Set("tenant", "t1", "b", 2)
	c.Set("tenant", "t1", "c", 3) // evicts "a"

	_, ok := c.Get("tenant", "t1", "a")
	assert.False(t, ok)
	_, ok = c.Get("tenant", "t1", "b")
	assert.True(t, ok)
	_, ok = c.Get("tenant", "t1", "c")
	assert.True(t, ok)

	// Other scopes keep their own capacity.
	c.Set("tenant", "t2", "a", 1)
	_, ok = c.Get("tenant", "t2", "a")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())
}

func TestLRU_Delete(t *testing.T) {
	c := NewLRU(10)
	c.Set("tenant", "t1", "a", 1)

	assert.True(t, c.Delete("tenant", "t1", "a"))
	assert.False(t, c.Delete("tenant", "t1", "a"))
	assert.Zero(t, c.Len())
}
