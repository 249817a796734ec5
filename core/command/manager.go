// Package command tracks the execution of commands that cannot complete
// synchronously. Every such command is represented by a receipt that is
// handed back to the requesting client; the manager sweeps receipts for
// timeouts and guarantees exactly one terminal notification per interested
// client.
package command

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/model"
)

// FinishedFunc is invoked exactly once when a receipt finishes with a
// response payload.
type FinishedFunc func(r *Receipt)

// TimeoutFunc is invoked once per client with the ids of every receipt of
// that client that timed out in the same sweep.
type TimeoutFunc func(clientID string, receiptIDs []string)

// Manager owns the receipt lifecycle. Receipt ids are random UUIDs and stay
// unique among outstanding receipts; an entry is purged only after its
// terminal notification has been produced, so a stale id can never be
// mistaken for a live one.
type Manager struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt

	timeout       time.Duration
	sweepInterval time.Duration

	onFinished FinishedFunc
	onTimeout  TimeoutFunc

	log logger.Logger
}

// NewManager creates a Manager with the given configuration.
func NewManager(cfg Config, log logger.Logger) *Manager {
	cfg.SetDefaults()
	return &Manager{
		receipts:      make(map[string]*Receipt),
		timeout:       time.Duration(cfg.TimeoutSeconds * float64(time.Second)),
		sweepInterval: time.Duration(cfg.SweepIntervalSeconds * float64(time.Second)),
		log:           log,
	}
}

// OnFinished registers the consumer of finished events. Safe to call while
// the manager is already sweeping.
func (m *Manager) OnFinished(fn FinishedFunc) {
	m.mu.Lock()
	m.onFinished = fn
	m.mu.Unlock()
}

// OnTimeout registers the consumer of timeout events. Safe to call while the
// manager is already sweeping.
func (m *Manager) OnTimeout(fn TimeoutFunc) {
	m.mu.Lock()
	m.onTimeout = fn
	m.mu.Unlock()
}

func (m *Manager) finishedFunc() FinishedFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onFinished
}

func (m *Manager) timeoutFunc() TimeoutFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.onTimeout
}

// NewReceipt allocates a pending receipt with a fresh id and registers it for
// sweeping. A non-positive timeout selects the configured default.
func (m *Manager) NewReceipt(timeout time.Duration) *Receipt {
	if timeout <= 0 {
		timeout = m.timeout
	}
	now := time.Now()
	r := &Receipt{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Deadline:  now.Add(timeout),
	}
	m.mu.Lock()
	m.receipts[r.ID] = r
	m.mu.Unlock()
	return r
}

// FindByID returns the outstanding receipt with the given id. Purged receipts
// are reported as not found.
func (m *Manager) FindByID(id string) (*Receipt, error) {
	m.mu.RLock()
	r, ok := m.receipts[id]
	m.mu.RUnlock()
	if !ok {
		return nil, model.NewNotFoundError("receipt", id)
	}
	return r, nil
}

// IDs returns the ids of all outstanding receipts, sorted.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.receipts))
	for id := range m.receipts {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// MarkClientsNotified records that the synchronous acknowledgment carrying
// the receipt has been delivered. The terminal notification is held back
// until this point so a client is never notified about a receipt it has not
// seen yet; if the command finished in the meantime the deferred finished
// event fires now.
func (m *Manager) MarkClientsNotified(id string) {
	r, err := m.FindByID(id)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.acked = true
	finished := r.state == StateFinished
	r.mu.Unlock()
	if finished && r.claimEmit() {
		m.emitFinished(r)
	}
}

// Finish transitions the receipt to finished and records the response
// payload. Repeated calls and calls after a timeout or cancellation are
// no-ops.
func (m *Manager) Finish(id string, response any) {
	r, err := m.FindByID(id)
	if err != nil {
		return
	}
	r.mu.Lock()
	if r.state != StatePending {
		r.mu.Unlock()
		return
	}
	r.state = StateFinished
	r.response = response
	acked := r.acked
	r.mu.Unlock()

	if acked && r.claimEmit() {
		m.emitFinished(r)
	}
}

// Cancel transitions the receipt to cancelled and removes it from the sweep
// set. Cancellation produces no notification; the cancelling client receives
// a direct synchronous response instead.
func (m *Manager) Cancel(r *Receipt) {
	if !r.transition(StateCancelled) {
		return
	}
	m.purge(r.ID)
}

// Run sweeps for expired receipts on a fixed interval until the context is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep transitions every pending receipt whose deadline has passed to timed
// out and emits one timeout event per affected client. Each receipt is
// transitioned under its own guard; the sweep never blocks concurrent finish
// or cancel calls for longer than a single transition.
func (m *Manager) Sweep(now time.Time) {
	m.mu.RLock()
	candidates := make([]*Receipt, 0, len(m.receipts))
	for _, r := range m.receipts {
		candidates = append(candidates, r)
	}
	m.mu.RUnlock()

	var expired []*Receipt
	var orphaned []*Receipt
	for _, r := range candidates {
		r.mu.Lock()
		switch {
		case r.state == StatePending && now.After(r.Deadline):
			r.state = StateTimedOut
			r.emitted = true
			expired = append(expired, r)
		case r.state == StateFinished && !r.emitted && now.After(r.Deadline):
			// Finished but the requester never saw the receipt; nothing to
			// notify, just purge.
			r.emitted = true
			orphaned = append(orphaned, r)
		}
		r.mu.Unlock()
	}
	for _, r := range orphaned {
		m.purge(r.ID)
	}
	if len(expired) == 0 {
		return
	}

	sort.Slice(expired, func(i, j int) bool {
		if expired[i].CreatedAt.Equal(expired[j].CreatedAt) {
			return expired[i].ID < expired[j].ID
		}
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})

	byClient := make(map[string][]string)
	for _, r := range expired {
		for _, clientID := range r.ClientsToNotify() {
			byClient[clientID] = append(byClient[clientID], r.ID)
		}
		m.purge(r.ID)
	}

	clients := make([]string, 0, len(byClient))
	for clientID := range byClient {
		clients = append(clients, clientID)
	}
	sort.Strings(clients)

	m.log.Warnf("%d command receipt(s) timed out", len(expired))
	if fn := m.timeoutFunc(); fn != nil {
		for _, clientID := range clients {
			fn(clientID, byClient[clientID])
		}
	}
}

func (m *Manager) emitFinished(r *Receipt) {
	m.purge(r.ID)
	if fn := m.finishedFunc(); fn != nil {
		fn(r)
	}
}

func (m *Manager) purge(id string) {
	m.mu.Lock()
	delete(m.receipts, id)
	m.mu.Unlock()
}
