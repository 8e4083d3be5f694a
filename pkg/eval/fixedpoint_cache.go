package eval

import (
	"container/list"
	"sync"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// fixedPointCache memoizes a tainted loop's simplified (test, body) pair
// by the identity of its original AST node. An ambiguous loop's
// simplification never depends on concrete call-site values: once a
// loop goes tainted, every write crossing the loop boundary is degraded
// to a reference by the taint_parent_writes gate, so the same source loop
// evaluated from two different call sites (e.g. a recursive function
// containing it) converges to the same residual both times.
// Grounded on the pkg/parser/cache.go LRU pattern (container/list plus
// a map, hits/misses counters), narrowed to this package's in-memory,
// no-off-heap-resource use.
type fixedPointCache struct {
	maxEntries int

	mu        sync.Mutex
	items     map[ast.Node]*list.Element
	evictList *list.List

	hits, misses int64
}

type fixedPointEntry struct {
	key  ast.Node
	test ast.Node
	body *ast.BlockStatement
}

func newFixedPointCache(maxEntries int) *fixedPointCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &fixedPointCache{
		maxEntries: maxEntries,
		items:      make(map[ast.Node]*list.Element, maxEntries),
		evictList:  list.New(),
	}
}

func (c *fixedPointCache) Get(key ast.Node) (test ast.Node, body *ast.BlockStatement, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, found := c.items[key]
	if !found {
		c.misses++
		return nil, nil, false
	}
	c.evictList.MoveToFront(elem)
	c.hits++
	e := elem.Value.(*fixedPointEntry)
	return e.test, e.body, true
}

func (c *fixedPointCache) Put(key ast.Node, test ast.Node, body *ast.BlockStatement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*fixedPointEntry)
		e.test, e.body = test, body
		c.evictList.MoveToFront(elem)
		return
	}
	for len(c.items) >= c.maxEntries {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.evictList.Remove(back)
		delete(c.items, back.Value.(*fixedPointEntry).key)
	}
	elem := c.evictList.PushFront(&fixedPointEntry{key: key, test: test, body: body})
	c.items[key] = elem
}

// Stats exposes hit/miss counters, surfaced by the CLI's -stats flag
// alongside pkg/frontend's parse cache.
func (c *fixedPointCache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
