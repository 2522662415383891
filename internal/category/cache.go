package category

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/elliotchance/orderedmap/v3"
)

const cacheCapacity = 100

// responseCache keeps raw classification answers keyed by content and the
// enabled-category set. Bounded to cacheCapacity entries; inserting past
// capacity evicts the oldest-inserted entry in true insertion order. Hash
// collisions are accepted as a bounded-probability trade-off for a cache
// this small.
type responseCache struct {
	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, string]
}

func newResponseCache() *responseCache {
	return &responseCache{
		entries: orderedmap.NewOrderedMap[string, string](),
	}
}

// key hashes the content and the sorted enabled-category id list.
func (c *responseCache) key(content string, categories []Category) string {
	ids := make([]string, len(categories))
	for i, cat := range categories {
		ids[i] = cat.ID
	}
	sort.Strings(ids)

	contentHash := xxhash.Sum64String(content)
	idsHash := xxhash.Sum64String(strings.Join(ids, ","))
	return strconv.FormatUint(contentHash, 36) + "_" + strconv.FormatUint(idsHash, 36)
}

func (c *responseCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Get(key)
}

func (c *responseCache) put(key, answer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries.Get(key); !exists && c.entries.Len() >= cacheCapacity {
		if front := c.entries.Front(); front != nil {
			c.entries.Delete(front.Key)
		}
	}
	c.entries.Set(key, answer)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.NewOrderedMap[string, string]()
}
