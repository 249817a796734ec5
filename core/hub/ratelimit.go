package hub

import (
	"time"

	"github.com/flocklink/fleetd/internal/debounce"
)

// Status notifications for fast-moving UAVs can arrive far more often than
// clients need them. The hub funnels them through a debouncing batcher: the
// first request when no window is open goes out immediately, requests during
// the window are merged into a single message carrying the union of the
// requested ids.

// EnableStatusBatching installs the coalescing window for UAV status
// notifications. The flush callback receives the merged id set and is
// expected to build and broadcast the actual message.
func (h *Hub) EnableStatusBatching(window time.Duration, flush func(ids []string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != nil {
		h.status.Close()
	}
	h.status = debounce.New(window, flush)
}

// RequestToSendUAVStatus asks the hub to broadcast status information for the
// given UAV ids, subject to the coalescing window. Without batching enabled
// the request is dropped with a warning.
func (h *Hub) RequestToSendUAVStatus(ids ...string) {
	h.mu.RLock()
	b := h.status
	h.mu.RUnlock()
	if b == nil {
		h.log.Warnf("status batching not enabled, dropping request for %d id(s)", len(ids))
		return
	}
	b.Request(ids...)
}

// Close releases the hub's batching resources, flushing pending status ids.
func (h *Hub) Close() {
	h.mu.Lock()
	b := h.status
	h.status = nil
	h.mu.Unlock()
	if b != nil {
		b.Close()
	}
}
