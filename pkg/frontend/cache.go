// Package frontend is the external-collaborator adapter that turns a real
// .js source file into the typed tree pkg/eval consumes. It sits outside
// the evaluator's contract entirely (pkg/eval never imports it); only
// cmd/jstaintfold wires it in. Grounded on the
// pkg/parser/service.go + pkg/parser/cache.go pattern (tree-sitter parser
// pool plus an LRU cache keyed by file path), narrowed from a
// twelve-language service down to the single JavaScript grammar this
// repo's dialect lowers from.
package frontend

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// programCache is an LRU cache from file path to its already-lowered
// Program, so a caller that parses the same path twice (e.g. a long-lived
// service embedding this package, unlike the one-shot CLI) skips both the
// tree-sitter parse and the lowering walk. Unlike a Tree-holding cache, it
// has no memory-sized eviction: a lowered Program holds no tree-sitter
// Tree to Close, so there is no off-heap resource to bound against.
type programCache struct {
	maxEntries int

	mu        sync.RWMutex
	items     map[string]*list.Element
	evictList *list.List

	hits   int64
	misses int64
}

type cacheEntry struct {
	key string
	p   *ast.Program
}

func newProgramCache(maxEntries int) *programCache {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &programCache{
		maxEntries: maxEntries,
		items:      make(map[string]*list.Element, maxEntries),
		evictList:  list.New(),
	}
}

func (c *programCache) Get(key string) *ast.Program {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.evictList.MoveToFront(elem)
		atomic.AddInt64(&c.hits, 1)
		return elem.Value.(*cacheEntry).p
	}
	atomic.AddInt64(&c.misses, 1)
	return nil
}

func (c *programCache) Put(key string, p *ast.Program) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheEntry).p = p
		c.evictList.MoveToFront(elem)
		return
	}
	for len(c.items) >= c.maxEntries {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.evictList.Remove(back)
		delete(c.items, back.Value.(*cacheEntry).key)
	}
	elem := c.evictList.PushFront(&cacheEntry{key: key, p: p})
	c.items[key] = elem
}

// Stats returns cache hit/miss counters, exposed by the CLI's -stats flag.
func (c *programCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
