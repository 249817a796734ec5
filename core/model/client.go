package model

// MessageSink delivers outbound messages to a single connected client. The
// transport layer provides the implementation.
type MessageSink interface {
	SendMessage(msg *Message) error
}

// Client is a connected peer able to send requests and receive responses and
// notifications.
type Client struct {
	ID   string
	Sink MessageSink
}

// Send delivers a message to the client, dropping it silently when the
// client has no attached sink.
func (c *Client) Send(msg *Message) error {
	if c.Sink == nil {
		return nil
	}
	return c.Sink.SendMessage(msg)
}
