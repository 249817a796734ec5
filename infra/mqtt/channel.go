// Package mqtt carries the protocol messages between clients and the server
// over an MQTT broker. Every client owns a pair of topics: it publishes
// requests on .../rx and receives responses and notifications on .../tx. An
// optional status topic with a last-will payload detects client departure.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/core/registry"
	"github.com/flocklink/fleetd/infra/logger"
)

// Config defines the connection parameters for the MQTT channel.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	QoS         byte        `json:"qos"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults fills in the defaults for unset fields.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "fleetd-server"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "fleetd"
	}
}

// LoadTLSConfig loads the TLS configuration from the file paths in the
// config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

// Dispatcher routes one incoming protocol message and returns the outgoing
// one, if any. The message hub satisfies this.
type Dispatcher interface {
	Dispatch(msg *model.Message, sender *model.Client) *model.Message
}

// ClientObserver is notified when transport clients appear or disappear.
type ClientObserver interface {
	ClientConnected(clientID string)
	ClientDisconnected(clientID string)
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Channel is the MQTT transport for the protocol.
type Channel struct {
	cli        pahoClient
	prefix     string
	qos        byte
	clients    *registry.ClientRegistry
	dispatcher Dispatcher
	observer   ClientObserver
	log        logger.Logger
}

// NewChannel connects to the broker and wires inbound messages to the
// dispatcher. The observer may be nil.
func NewChannel(cfg Config, clients *registry.ClientRegistry, dispatcher Dispatcher, observer ClientObserver) (*Channel, error) {
	cfg.SetDefaults()
	log := logger.New("mqtt-channel")
	ch := &Channel{
		prefix:     cfg.TopicPrefix,
		qos:        cfg.QoS,
		clients:    clients,
		dispatcher: dispatcher,
		observer:   observer,
		log:        log,
	}

	opts, err := newClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected")
		ch.subscribe()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	ch.cli = newMQTTClient(opts)
	if token := ch.cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return ch, nil
}

func (ch *Channel) subscribe() {
	if token := ch.cli.Subscribe(ch.prefix+"/clients/+/rx", ch.qos, ch.onRequest); token.Wait() && token.Error() != nil {
		ch.log.Errorf("subscribe error: %v", token.Error())
	}
	if token := ch.cli.Subscribe(ch.prefix+"/clients/+/status", ch.qos, ch.onStatus); token.Wait() && token.Error() != nil {
		ch.log.Errorf("subscribe error: %v", token.Error())
	}
}

// Close disconnects from the broker.
func (ch *Channel) Close() {
	ch.cli.Disconnect(250)
}

func newClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

func (ch *Channel) onRequest(_ paho.Client, m paho.Message) {
	clientID, ok := ch.clientIDFromTopic(m.Topic(), "rx")
	if !ok {
		ch.log.Warnf("request on unexpected topic %s", m.Topic())
		return
	}
	msg, err := model.DecodeMessage(m.Payload())
	if err != nil {
		ch.log.Warnf("malformed message from %s: %v", clientID, err)
		return
	}

	client, err := ch.clients.FindByID(clientID)
	if err != nil {
		client = &model.Client{ID: clientID, Sink: &clientSink{ch: ch, clientID: clientID}}
		ch.clients.Add(clientID, client)
		if ch.observer != nil {
			ch.observer.ClientConnected(clientID)
		}
	}

	if out := ch.dispatcher.Dispatch(msg, client); out != nil {
		if err := client.Send(out); err != nil {
			ch.log.Warnf("response to %s failed: %v", clientID, err)
		}
	}
}

func (ch *Channel) onStatus(_ paho.Client, m paho.Message) {
	clientID, ok := ch.clientIDFromTopic(m.Topic(), "status")
	if !ok {
		return
	}
	if string(m.Payload()) != "offline" {
		return
	}
	if _, removed := ch.clients.Remove(clientID); removed {
		ch.log.Infof("client %s disconnected", clientID)
		if ch.observer != nil {
			ch.observer.ClientDisconnected(clientID)
		}
	}
}

func (ch *Channel) clientIDFromTopic(topic, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, ch.prefix+"/clients/")
	if !ok {
		return "", false
	}
	clientID, ok := strings.CutSuffix(rest, "/"+suffix)
	if !ok || clientID == "" || strings.Contains(clientID, "/") {
		return "", false
	}
	return clientID, true
}

// clientSink publishes outbound messages on the client's tx topic.
type clientSink struct {
	ch       *Channel
	clientID string
}

func (s *clientSink) SendMessage(msg *model.Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/clients/%s/tx", s.ch.prefix, s.clientID)
	token := s.ch.cli.Publish(topic, s.ch.qos, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}
