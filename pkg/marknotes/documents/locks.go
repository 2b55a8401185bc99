package documents

import (
	"sort"
	"sync"
)

// pathLocks serializes mutations of the same item within one process.
// Entries are dropped once no goroutine holds or waits for them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock acquires every key in sorted order and returns a func releasing them.
func (p *pathLocks) lock(keys ...string) func() {
	keys = uniqueSorted(keys)
	held := make([]*pathLock, 0, len(keys))
	for _, k := range keys {
		l := p.acquire(k)
		l.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			p.release(keys[i])
		}
	}
}

func (p *pathLocks) acquire(key string) *pathLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	return l
}

func (p *pathLocks) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(p.locks, key)
	}
}

func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

func uniqueSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[n-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}
