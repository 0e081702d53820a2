package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryDedupe is a single-process TTL set.
type MemoryDedupe struct {
	ttl     time.Duration
	mu      sync.Mutex
	items   map[string]time.Time
	stopCh  chan struct{}
	stopped bool
	now     func() time.Time
}

// NewMemoryDedupe keeps ids for ttl. janitorEvery > 0 starts a goroutine
// sweeping expired ids; stop it with Close.
func NewMemoryDedupe(ttl, janitorEvery time.Duration) *MemoryDedupe {
	m := &MemoryDedupe{
		ttl:    ttl,
		items:  make(map[string]time.Time, 1024),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	if janitorEvery > 0 {
		go m.janitor(janitorEvery)
	}
	return m
}

func (m *MemoryDedupe) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if exp, ok := m.items[id]; ok && exp.After(now) {
		return true, nil
	}
	m.items[id] = now.Add(m.ttl)
	return false, nil
}

func (m *MemoryDedupe) Forget(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, id)
	m.mu.Unlock()
	return nil
}

// Len is the number of ids held, expired or not.
func (m *MemoryDedupe) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryDedupe) sweep() {
	now := m.now()
	m.mu.Lock()
	for k, exp := range m.items {
		if !exp.After(now) {
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}

func (m *MemoryDedupe) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *MemoryDedupe) Close() {
	m.mu.Lock()
	if !m.stopped {
		close(m.stopCh)
		m.stopped = true
	}
	m.mu.Unlock()
}
