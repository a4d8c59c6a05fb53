package csn

import (
	"container/list"
	"sync"
)

// fetchCache is a small LRU over remote fetch results keyed by URL. Expiry
// is digest-based rather than time-based: an entry lives until it is
// explicitly refreshed or evicted by capacity.
type fetchCache struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element
}

type fetchEntry struct {
	url    string
	body   []byte
	digest string
}

func newFetchCache(capacity int) *fetchCache {
	return &fetchCache{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// get returns the cached body and digest for url, marking it most recently
// used.
func (c *fetchCache) get(url string) ([]byte, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[url]
	if !ok {
		return nil, "", false
	}
	c.ll.MoveToFront(el)
	e := el.Value.(*fetchEntry)
	return e.body, e.digest, true
}

// put stores a fetch result, evicting the least recently used entry when
// over capacity.
func (c *fetchCache) put(url string, body []byte, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[url]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*fetchEntry).body = body
		el.Value.(*fetchEntry).digest = digest
		return
	}
	el := c.ll.PushFront(&fetchEntry{url: url, body: body, digest: digest})
	c.items[url] = el
	if c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*fetchEntry).url)
		}
	}
}

// drop removes url from the cache so the next load re-fetches it.
func (c *fetchCache) drop(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[url]; ok {
		c.ll.Remove(el)
		delete(c.items, url)
	}
}

// len returns the number of cached entries.
func (c *fetchCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
