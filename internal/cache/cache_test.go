package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetGetExpire(t *testing.T) {
	c := New[string](time.Hour)
	defer c.Close()

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { mu.Lock(); defer mu.Unlock(); return now }

	c.Set("a", "1", time.Minute)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestCleanup(t *testing.T) {
	c := New[int](time.Hour)
	defer c.Close()
	c.Set("short", 1, -time.Second)
	c.Set("long", 2, time.Hour)

	c.cleanup()
	assert.Equal(t, 1, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("a", "b"), Key("a", "b"))
	assert.NotEqual(t, Key("ab", ""), Key("a", "b"))
	assert.Len(t, Key("x"), 64)
}

func TestCloseTwice(t *testing.T) {
	c := New[int](time.Millisecond)
	c.Close()
	c.Close()
}
