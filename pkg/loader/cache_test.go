package loader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetAndGet(t *testing.T) {
	c := newCache(time.Minute)
	c.set("https://example.com/doc.md", []byte("content"), false)

	content, isBinary, ok := c.get("https://example.com/doc.md")
	assert.True(t, ok)
	assert.Equal(t, "content", string(content))
	assert.False(t, isBinary)
}

func TestCacheMiss(t *testing.T) {
	c := newCache(time.Minute)
	_, _, ok := c.get("https://example.com/missing.md")
	assert.False(t, ok)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := newCache(50 * time.Millisecond)
	c.set("url", []byte("content"), false)

	_, _, ok := c.get("url")
	assert.True(t, ok)

	time.Sleep(60 * time.Millisecond)

	_, _, ok = c.get("url")
	assert.False(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := newCache(time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.set("shared-key", []byte("content"), false)
		}()
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.get("shared-key")
		}()
	}
	wg.Wait()

	content, _, ok := c.get("shared-key")
	assert.True(t, ok)
	assert.Equal(t, "content", string(content))
}
