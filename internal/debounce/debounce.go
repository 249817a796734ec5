package debounce

import (
	"sync"
	"time"
)

// Batcher coalesces bursts of requests keyed by K into batched flushes.
// A request arriving while no window is open is flushed immediately and
// opens a window; requests arriving during the window are merged and
// flushed together when the window expires.
type Batcher[K comparable] struct {
	mu      sync.Mutex
	window  time.Duration
	flush   func([]K)
	pending map[K]struct{}
	timer   *time.Timer
	open    bool
	closed  bool
}

// New creates a Batcher with the given window and flush callback. The
// callback is invoked without the internal lock held.
func New[K comparable](window time.Duration, flush func([]K)) *Batcher[K] {
	return &Batcher[K]{
		window:  window,
		flush:   flush,
		pending: make(map[K]struct{}),
	}
}

// Request submits keys for delivery. Duplicate keys within one window are
// merged.
func (b *Batcher[K]) Request(keys ...K) {
	if len(keys) == 0 {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if !b.open {
		b.open = true
		b.timer = time.AfterFunc(b.window, b.expire)
		b.mu.Unlock()
		b.flush(keys)
		return
	}
	for _, k := range keys {
		b.pending[k] = struct{}{}
	}
	b.mu.Unlock()
}

func (b *Batcher[K]) expire() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if len(b.pending) == 0 {
		b.open = false
		b.mu.Unlock()
		return
	}
	keys := b.take()
	// Keep the window open after a delayed flush so sustained bursts stay
	// rate limited.
	b.timer = time.AfterFunc(b.window, b.expire)
	b.mu.Unlock()
	b.flush(keys)
}

// Close stops the timer and flushes any pending keys.
func (b *Batcher[K]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	keys := b.take()
	b.mu.Unlock()
	if len(keys) > 0 {
		b.flush(keys)
	}
}

func (b *Batcher[K]) take() []K {
	keys := make([]K, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	b.pending = make(map[K]struct{})
	return keys
}
