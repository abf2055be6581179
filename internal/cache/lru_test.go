package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLRU(t *testing.T) {
	c := NewLRU(10)

	c.Set("a", []byte("aaaa"))
	c.Set("b", []byte("bbbb"))

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("aaaa"), v)
	assert.Equal(t, int64(8), c.Size())

	// "b" is now the coldest entry.
	c.Set("c", []byte("cccc"))
	_, ok = c.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, c.Len())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUReplace(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", []byte("aa"))
	c.Set("a", []byte("aaaaaa"))
	assert.Equal(t, int64(6), c.Size())

	c.Set("a", []byte("this is too large"))
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Size())
}

func TestLRUOversized(t *testing.T) {
	c := NewLRU(4)
	c.Set("big", []byte("12345"))
	assert.Equal(t, 0, c.Len())
}

func TestLRURemove(t *testing.T) {
	c := NewLRU(10)
	c.Set("a", []byte("a"))
	c.Remove("a")
	c.Remove("missing")
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), c.Size())
}
