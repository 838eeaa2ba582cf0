package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCache_SetGet(t *testing.T) {
	c := NewInMemoryCache[int, string](time.Minute)
	defer c.Close()

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, "a", 0)
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, c.Size())

	c.Delete(1)
	_, ok = c.Get(1)
	assert.False(t, ok)

	c.Set(2, "b", 0)
	c.Set(3, "c", 0)
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCacheWithCleanup[string, int](time.Minute, 0)
	defer c.Close()

	c.Set("short", 1, 10*time.Millisecond)
	c.Set("long", 2, 0)
	time.Sleep(30 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok, "过期项不应该返回")
	assert.Equal(t, 1, c.Size(), "过期项在 Get 时被删除")

	v, ok := c.Get("long")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestInMemoryCache_BackgroundCleanup(t *testing.T) {
	c := NewInMemoryCacheWithCleanup[string, int](5*time.Millisecond, 10*time.Millisecond)
	defer c.Close()

	c.Set("k", 1, 0)
	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryCache_CloseTwice(t *testing.T) {
	c := NewInMemoryCache[string, int](time.Minute)
	c.Close()
	c.Close()
}
