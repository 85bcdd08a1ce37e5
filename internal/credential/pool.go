// Package credential keeps the ordered set of API keys used by the text service.
package credential

import (
	"strings"
	"sync"
)

type entry struct {
	key     string
	blocked bool
}

// Pool hands out the first unblocked key. When every key is blocked the flags are
// cleared once and the first key is returned; after that an exhausted pool is empty.
type Pool struct {
	mu      sync.Mutex
	entries []entry
	resets  int
}

// NewPool builds a pool from keys, skipping blanks and duplicates while keeping order.
func NewPool(keys ...string) *Pool {
	p := &Pool{}
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		p.entries = append(p.entries, entry{key: k})
	}
	return p
}

// Next returns the key to use for the next call. ok is false when the pool is empty
// or has already been reset once during this run and is exhausted again.
func (p *Pool) Next() (key string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return "", false
	}
	for _, e := range p.entries {
		if !e.blocked {
			return e.key, true
		}
	}
	if p.resets > 0 {
		return "", false
	}

	p.resets++
	for i := range p.entries {
		p.entries[i].blocked = false
	}
	return p.entries[0].key, true
}

// Block marks key as unusable until the pool is reset. Unknown keys are ignored.
func (p *Pool) Block(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.entries {
		if p.entries[i].key == key {
			p.entries[i].blocked = true
			return
		}
	}
}

// Available returns how many keys are currently unblocked.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.entries {
		if !e.blocked {
			n++
		}
	}
	return n
}

// Exhausted reports whether every key is blocked.
func (p *Pool) Exhausted() bool {
	return p.Available() == 0
}

// Len returns the number of keys in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Resets returns how many times the block flags were cleared.
func (p *Pool) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Preview renders a key for logs without exposing it.
func Preview(key string) string {
	if len(key) <= 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
