// Package events defines the server events emitted on the internal event bus.
//
// Available event types:
//   - MessageHandled: a protocol message was dispatched to its handler
//   - CommandFinished: a command receipt finished with a response
//   - CommandTimedOut: command receipts expired for one client
//   - ClientEvent: a client connected or disconnected
package events

import "time"

// MessageHandled is published after the hub dispatched an incoming message.
type MessageHandled struct {
	Type     string
	ClientID string
	Duration time.Duration
}

// CommandFinished is published when an asynchronous command delivers its
// response.
type CommandFinished struct {
	ReceiptID string
	Age       time.Duration
	Clients   int
}

// CommandTimedOut is published once per client whose receipts expired in the
// same sweep.
type CommandTimedOut struct {
	ClientID   string
	ReceiptIDs []string
}

// ClientEvent is published when a client connects or disconnects.
type ClientEvent struct {
	ClientID  string
	Connected bool
}
