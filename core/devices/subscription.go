package devices

import (
	"sort"
	"sync"
	"time"

	"github.com/flocklink/fleetd/core/hub"
	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/internal/debounce"
)

// SubscriptionManager tracks which clients are interested in which device
// tree paths. Subscriptions are reference counted: subscribing twice to the
// same path requires two unsubscriptions unless the removal is forced.
// Changes flowing out of tree mutation batches are delivered as DEV-INF
// notifications, coalesced per client the same way UAV status notifications
// are.
type SubscriptionManager struct {
	tree *Tree
	hub  *hub.Hub
	log  logger.Logger

	mu      sync.Mutex
	subs    map[string]map[string]int      // client id -> path -> count
	pending map[string]map[string]struct{} // client id -> changed paths
	batcher *debounce.Batcher[string]
}

// NewSubscriptionManager wraps the given tree. Change notifications are sent
// through h, coalesced over the given window.
func NewSubscriptionManager(tree *Tree, h *hub.Hub, window time.Duration, log logger.Logger) *SubscriptionManager {
	m := &SubscriptionManager{
		tree:    tree,
		hub:     h,
		log:     log,
		subs:    make(map[string]map[string]int),
		pending: make(map[string]map[string]struct{}),
	}
	m.batcher = debounce.New(window, m.flush)
	return m
}

// Subscribe registers the client's interest in the given path. The path must
// resolve to an existing node. The resolve happens while the subscription map
// is locked so a concurrent RemoveSubtree cannot slip between the check and
// the insert and leave a subscription on a vanished node.
func (m *SubscriptionManager) Subscribe(clientID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.tree.Resolve(path); err != nil {
		return err
	}
	path = CanonicalPath(path)
	if m.subs[clientID] == nil {
		m.subs[clientID] = make(map[string]int)
	}
	m.subs[clientID][path]++
	return nil
}

// Unsubscribe removes the client's interest in the given path. With force
// the entry is removed regardless of its count, otherwise the count is
// decremented and the entry removed only at zero.
func (m *SubscriptionManager) Unsubscribe(clientID, path string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.tree.Resolve(path); err != nil {
		return err
	}
	path = CanonicalPath(path)
	counts := m.subs[clientID]
	if counts[path] == 0 {
		return model.ErrClientNotSubscribed
	}
	if force {
		delete(counts, path)
	} else {
		counts[path]--
		if counts[path] == 0 {
			delete(counts, path)
		}
	}
	if len(counts) == 0 {
		delete(m.subs, clientID)
	}
	return nil
}

// ListSubscriptions returns every path the client is subscribed to that lies
// at or under any of the filter roots, repeated once per subscription count.
// An empty filter matches everything.
func (m *SubscriptionManager) ListSubscriptions(clientID string, pathFilter []string) []string {
	if len(pathFilter) == 0 {
		pathFilter = []string{"/"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for path, count := range m.subs[clientID] {
		for _, root := range pathFilter {
			if IsAtOrUnder(path, root) {
				for i := 0; i < count; i++ {
					out = append(out, path)
				}
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// RemoveSubtree drops every subscription of every client at or under the
// given path, returning the removed paths per client. Used when a UAV is
// deregistered and its subtree vanishes.
func (m *SubscriptionManager) RemoveSubtree(path string) map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := make(map[string][]string)
	for clientID, counts := range m.subs {
		for p := range counts {
			if IsAtOrUnder(p, path) {
				removed[clientID] = append(removed[clientID], p)
				delete(counts, p)
			}
		}
		if len(counts) == 0 {
			delete(m.subs, clientID)
		}
	}
	for _, paths := range removed {
		sort.Strings(paths)
	}
	return removed
}

// RemoveClient drops every subscription and pending notification of the
// given client, e.g. when it disconnects.
func (m *SubscriptionManager) RemoveClient(clientID string) {
	m.mu.Lock()
	delete(m.subs, clientID)
	delete(m.pending, clientID)
	m.mu.Unlock()
}

// NotifyChanged schedules DEV-INF notifications for every client whose
// subscriptions cover any of the changed paths.
func (m *SubscriptionManager) NotifyChanged(changed []string) {
	if len(changed) == 0 {
		return
	}
	m.mu.Lock()
	var affected []string
	for clientID, counts := range m.subs {
		for _, path := range changed {
			if m.covers(counts, path) {
				if m.pending[clientID] == nil {
					m.pending[clientID] = make(map[string]struct{})
				}
				m.pending[clientID][path] = struct{}{}
				if !contains(affected, clientID) {
					affected = append(affected, clientID)
				}
			}
		}
	}
	m.mu.Unlock()
	if len(affected) > 0 {
		m.batcher.Request(affected...)
	}
}

// CreateDEVINFMessageFor builds a DEV-INF message with the current channel
// values in the subtrees of the given paths. Unresolvable paths are recorded
// as ledger failures.
func (m *SubscriptionManager) CreateDEVINFMessageFor(paths []string, inResponseTo *model.Message) *model.Response {
	values := make(map[string]any)
	resp := model.NewResponse(model.TypeDEVInf, model.Body{"values": values}, inResponseTo)
	for _, path := range paths {
		vals, err := m.tree.Values(path)
		if err != nil {
			resp.AddFailure(path, "No such device tree path")
			continue
		}
		values[CanonicalPath(path)] = vals
	}
	return resp
}

// Close flushes pending notifications and stops the batcher.
func (m *SubscriptionManager) Close() {
	m.batcher.Close()
}

func (m *SubscriptionManager) covers(counts map[string]int, changed string) bool {
	for path, count := range counts {
		if count > 0 && IsAtOrUnder(changed, path) {
			return true
		}
	}
	return false
}

func (m *SubscriptionManager) flush(clientIDs []string) {
	for _, clientID := range clientIDs {
		m.mu.Lock()
		pending := m.pending[clientID]
		delete(m.pending, clientID)
		m.mu.Unlock()
		if len(pending) == 0 {
			continue
		}
		paths := make([]string, 0, len(pending))
		for path := range pending {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		msg := m.CreateDEVINFMessageFor(paths, nil)
		if err := m.hub.SendMessage(&msg.Message, clientID); err != nil {
			m.log.Warnf("device change notification to %s failed: %v", clientID, err)
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
