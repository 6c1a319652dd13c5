// Package summary fetches short landmark descriptions from a chat-completion
// API and caches them for the popup renderer.
package summary

import "sync"

// Cache maps landmark keys to summary text. Reads come from the renderer on
// the view loop, writes from the fetcher.
type Cache struct {
	mu    sync.RWMutex
	items map[string]string
}

func NewCache() *Cache {
	return &Cache{items: make(map[string]string)}
}

// Get implements popup.Summaries.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.items[key]
	return s, ok
}

// Set stores a summary. Empty text is ignored so the fallback stays visible.
func (c *Cache) Set(key, text string) {
	if key == "" || text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = text
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]string)
}
