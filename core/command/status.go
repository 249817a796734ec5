package command

import (
	"sort"
	"sync"
	"time"
)

// State is the lifecycle state of a command receipt. Transitions are one-way:
// a pending receipt moves to exactly one of the terminal states and never
// back.
type State int

const (
	StatePending State = iota
	StateFinished
	StateTimedOut
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFinished:
		return "finished"
	case StateTimedOut:
		return "timedOut"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Receipt is the opaque handle to an asynchronously executed command. The
// mutex guards the state machine so that finish, cancel and the timeout
// sweep exclude each other; the first terminal transition wins and all later
// attempts are no-ops.
type Receipt struct {
	ID        string
	CreatedAt time.Time
	Deadline  time.Time

	mu              sync.Mutex
	state           State
	clientsToNotify map[string]struct{}
	response        any
	acked           bool
	emitted         bool
}

// State returns the current lifecycle state.
func (r *Receipt) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Response returns the payload delivered by Finish, if any.
func (r *Receipt) Response() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// AddClientToNotify registers a client to be included in the terminal
// notification for this receipt.
func (r *Receipt) AddClientToNotify(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clientsToNotify == nil {
		r.clientsToNotify = make(map[string]struct{})
	}
	r.clientsToNotify[clientID] = struct{}{}
}

// ClientsToNotify returns the sorted ids of the clients interested in the
// terminal outcome.
func (r *Receipt) ClientsToNotify() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.clientsToNotify))
	for id := range r.clientsToNotify {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// View returns the wire representation used in CMD-INF messages and receipt
// ledger entries.
func (r *Receipt) View() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	view := map[string]any{
		"id":       r.ID,
		"state":    r.state.String(),
		"created":  r.CreatedAt,
		"deadline": r.Deadline,
	}
	if r.response != nil {
		view["response"] = r.response
	}
	return view
}

// transition moves the receipt from pending to the given terminal state.
// It reports whether this call performed the transition.
func (r *Receipt) transition(to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return false
	}
	r.state = to
	return true
}

// claimEmit marks the terminal notification as produced, returning false if
// another path already claimed it.
func (r *Receipt) claimEmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emitted {
		return false
	}
	r.emitted = true
	return true
}
