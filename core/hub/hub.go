// Package hub implements the central message dispatcher: incoming protocol
// messages are routed to their registered handlers, responses are correlated
// to their requests, and notifications are pushed to connected clients.
package hub

import (
	"fmt"
	"sync"

	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/core/registry"
	"github.com/flocklink/fleetd/internal/debounce"
)

// Handler processes one incoming message. It may return a full message or
// response, or a bare model.Body which the hub wraps into a response
// correlated to the incoming message. A returned error is converted into a
// negative acknowledgment; it never propagates to the transport.
type Handler func(msg *model.Message, sender *model.Client, h *Hub) (any, error)

// Hub routes messages between clients and handlers. There is exactly one hub
// per server process.
type Hub struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	clients  *registry.ClientRegistry
	status   *debounce.Batcher[string]
	log      logger.Logger
}

// New creates a Hub delivering outbound messages to the clients in the given
// registry.
func New(clients *registry.ClientRegistry, log logger.Logger) *Hub {
	return &Hub{
		handlers: make(map[string]Handler),
		clients:  clients,
		log:      log,
	}
}

// Register binds the handler to the given message type codes. Registering a
// type again replaces the previous handler; each type has exactly one source
// of truth.
func (h *Hub) Register(types []string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, typ := range types {
		if _, exists := h.handlers[typ]; exists {
			h.log.Debugf("replacing handler for %s", typ)
		}
		h.handlers[typ] = handler
	}
}

// Dispatch routes the incoming message to its handler and returns the
// outgoing message, if any. Unknown message types and handler errors yield an
// ACK-NAK response; a notification-style handler result yields nil.
func (h *Hub) Dispatch(msg *model.Message, sender *model.Client) *model.Message {
	h.mu.RLock()
	handler, ok := h.handlers[msg.Type]
	h.mu.RUnlock()
	if !ok {
		h.log.Warnf("unsupported message type %s from client %s", msg.Type, clientID(sender))
		return h.nak(msg, fmt.Sprintf("unsupported message type: %s", msg.Type))
	}

	result, err := handler(msg, sender, h)
	if err != nil {
		h.log.Errorf("handler for %s failed: %v", msg.Type, err)
		return h.nak(msg, err.Error())
	}

	switch out := result.(type) {
	case nil:
		return nil
	case *model.Message:
		return out
	case *model.Response:
		return &out.Message
	case model.Body:
		resp := model.NewResponse(msg.Type, out, msg)
		return &resp.Message
	case map[string]any:
		resp := model.NewResponse(msg.Type, model.Body(out), msg)
		return &resp.Message
	default:
		h.log.Errorf("handler for %s returned unexpected %T", msg.Type, result)
		return h.nak(msg, "internal server error")
	}
}

// CreateResponseOrNotification builds a message of the given type: a response
// correlated to inResponseTo when that is non-nil, a notification otherwise.
func (h *Hub) CreateResponseOrNotification(typ string, body model.Body, inResponseTo *model.Message) *model.Response {
	return model.NewResponse(typ, body, inResponseTo)
}

// Acknowledge builds a positive acknowledgment for the given message.
func (h *Hub) Acknowledge(msg *model.Message) *model.Message {
	resp := model.NewResponse(model.TypeACKACK, nil, msg)
	return &resp.Message
}

// SendMessage delivers the message to the client with the given id, or
// broadcasts it to every connected client when the id is empty.
func (h *Hub) SendMessage(msg *model.Message, to string) error {
	if to == "" {
		h.broadcast(msg)
		return nil
	}
	client, err := h.clients.FindByID(to)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	if err := client.Send(msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", msg.Type, to, err)
	}
	return nil
}

func (h *Hub) broadcast(msg *model.Message) {
	for _, id := range h.clients.IDs() {
		client, err := h.clients.FindByID(id)
		if err != nil {
			continue
		}
		if err := client.Send(msg); err != nil {
			h.log.Warnf("broadcast %s to %s failed: %v", msg.Type, id, err)
		}
	}
}

func (h *Hub) nak(msg *model.Message, reason string) *model.Message {
	resp := model.NewResponse(model.TypeACKNAK, model.Body{"reason": reason}, msg)
	return &resp.Message
}

func clientID(c *model.Client) string {
	if c == nil {
		return "?"
	}
	return c.ID
}
