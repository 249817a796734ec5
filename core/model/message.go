package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Well-known message type codes understood by the server.
const (
	TypeACKACK     = "ACK-ACK"
	TypeACKNAK     = "ACK-NAK"
	TypeCLKInf     = "CLK-INF"
	TypeCLKList    = "CLK-LIST"
	TypeCMDDel     = "CMD-DEL"
	TypeCMDInf     = "CMD-INF"
	TypeCMDReq     = "CMD-REQ"
	TypeCMDResp    = "CMD-RESP"
	TypeCMDTimeout = "CMD-TIMEOUT"
	TypeCONNInf    = "CONN-INF"
	TypeCONNList   = "CONN-LIST"
	TypeDEVInf     = "DEV-INF"
	TypeDEVList    = "DEV-LIST"
	TypeDEVListSub = "DEV-LISTSUB"
	TypeDEVSub     = "DEV-SUB"
	TypeDEVUnsub   = "DEV-UNSUB"
	TypeSYSPing    = "SYS-PING"
	TypeSYSVer     = "SYS-VER"
	TypeUAVInf     = "UAV-INF"
	TypeUAVLand    = "UAV-LAND"
	TypeUAVList    = "UAV-LIST"
	TypeUAVTakeoff = "UAV-TAKEOFF"
)

// Body is the free-form payload of a protocol message. The "type" key always
// mirrors the message type code.
type Body map[string]any

// Message is a single protocol message exchanged with a client. A message
// carrying a correlation token (Refs) is a response to the request with that
// id; a message without one is an unsolicited notification.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Body Body   `json:"body"`
	Refs string `json:"refs,omitempty"`
}

// NewMessage creates a notification-style message with a fresh id. The body
// may be nil; the "type" key of the body is kept in sync with the type code.
func NewMessage(typ string, body Body) *Message {
	if body == nil {
		body = Body{}
	}
	body["type"] = typ
	return &Message{
		ID:   uuid.NewString(),
		Type: typ,
		Body: body,
	}
}

// Validate performs boundary-time checks on a message decoded from the wire.
func (m *Message) Validate() error {
	if m.Type == "" {
		return fmt.Errorf("message has no type")
	}
	if m.ID == "" {
		return fmt.Errorf("message has no id")
	}
	return nil
}

// IsNotification reports whether the message carries no correlation token.
func (m *Message) IsNotification() bool { return m.Refs == "" }

// StringSlice extracts a list of strings from the body under the given key.
// JSON decoding yields []any; both that and []string are accepted.
func (m *Message) StringSlice(key string) ([]string, error) {
	raw, ok := m.Body[key]
	if !ok {
		return nil, fmt.Errorf("missing %q field", key)
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("field %q contains a non-string entry", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("field %q is not a list", key)
	}
}

// Bool extracts a boolean from the body, returning def when absent.
func (m *Message) Bool(key string, def bool) bool {
	if v, ok := m.Body[key].(bool); ok {
		return v
	}
	return def
}

// Encode serializes the message to its JSON wire form.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a message from its JSON wire form and validates it.
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m.Body == nil {
		m.Body = Body{}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
