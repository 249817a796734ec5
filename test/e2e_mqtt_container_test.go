package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/flocklink/fleetd/app"
	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/infra/logger"
	"github.com/flocklink/fleetd/infra/mqtt"
	"github.com/flocklink/fleetd/sim"
)

func waitForMQTTReady(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("probe")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for broker")
	}
	return lastErr
}

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
log_type error
log_type warning
`
	dir := t.TempDir()
	path := filepath.Join(dir, "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatalf("write conf: %v", err)
	}

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForMQTTReady(broker, 5*time.Second); err != nil {
		t.Logf("mosquitto not ready at %s: %v", broker, err)
		t.Skip("Mosquitto not ready after retries")
	}
	return cont, broker
}

// testClient is an MQTT protocol client speaking the request/response topics
// of one logical fleet client.
type testClient struct {
	cli paho.Client
	id  string

	mu   sync.Mutex
	msgs []*model.Message
}

func connectTestClient(t *testing.T, broker, clientID string) *testClient {
	t.Helper()
	c := &testClient{id: clientID}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("peer-" + clientID)
	c.cli = paho.NewClient(opts)
	if token := c.cli.Connect(); token.Wait() && token.Error() != nil {
		t.Skipf("connect: %v", token.Error())
	}
	topic := "fleetd/clients/" + clientID + "/tx"
	if token := c.cli.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		msg, err := model.DecodeMessage(m.Payload())
		if err != nil {
			return
		}
		c.mu.Lock()
		c.msgs = append(c.msgs, msg)
		c.mu.Unlock()
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}
	return c
}

func (c *testClient) send(t *testing.T, msg *model.Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	topic := "fleetd/clients/" + c.id + "/rx"
	if token := c.cli.Publish(topic, 1, false, data); token.Wait() && token.Error() != nil {
		t.Fatalf("publish: %v", token.Error())
	}
}

func (c *testClient) waitFor(t *testing.T, timeout time.Duration, match func(*model.Message) bool) *model.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, m := range c.msgs {
			if match(m) {
				c.mu.Unlock()
				return m
			}
		}
		c.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected message not received")
	return nil
}

func TestServerOverMQTTContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	server := app.New(app.Options{
		Version:      "e2e",
		Commands:     command.Config{TimeoutSeconds: 5, SweepIntervalSeconds: 0.1},
		StatusWindow: 20 * time.Millisecond,
		Log:          logger.NopLogger{},
	})
	go func() { _ = server.Run(ctx) }()

	driver := sim.NewDriver(server.Commands(), 50*time.Millisecond, logger.NopLogger{})
	provider := sim.NewProvider(sim.Config{
		Enabled:      true,
		Count:        1,
		DelaySeconds: 0.1,
		Origin:       model.GPSCoordinate{Lat: 47.473, Lon: 19.062},
	}, server, driver, logger.NopLogger{})
	go func() { _ = provider.Run(ctx) }()

	channel, err := mqtt.NewChannel(mqtt.Config{
		Broker:   broker,
		ClientID: "fleetd-e2e",
	}, server.Clients(), server, server)
	if err != nil {
		t.Fatalf("channel: %v", err)
	}
	defer channel.Close()

	peer := connectTestClient(t, broker, "c1")
	defer peer.cli.Disconnect(100)

	// SYS-VER roundtrip
	req := model.NewMessage(model.TypeSYSVer, nil)
	peer.send(t, req)
	resp := peer.waitFor(t, 5*time.Second, func(m *model.Message) bool {
		return m.Refs == req.ID
	})
	if resp.Body["software"] != "fleetd" {
		t.Errorf("unexpected software: %v", resp.Body["software"])
	}

	// asynchronous command: the ledger carries a receipt, the CMD-RESP
	// notification resolves it
	req = model.NewMessage(model.TypeCMDReq, model.Body{
		"ids":     []string{"VIRT-0"},
		"command": "yo",
	})
	peer.send(t, req)
	ack := peer.waitFor(t, 5*time.Second, func(m *model.Message) bool {
		return m.Refs == req.ID
	})
	receipts, ok := ack.Body["receipt"].(map[string]any)
	if !ok {
		t.Fatalf("no receipt in ledger: %v", ack.Body)
	}
	view, ok := receipts["VIRT-0"].(map[string]any)
	if !ok {
		t.Fatalf("no receipt for VIRT-0: %v", receipts)
	}
	receiptID, _ := view["id"].(string)
	if receiptID == "" {
		t.Fatal("receipt has no id")
	}

	final := peer.waitFor(t, 5*time.Second, func(m *model.Message) bool {
		return m.Type == model.TypeCMDResp && m.Body["id"] == receiptID
	})
	if _, ok := final.Body["response"].(string); !ok {
		t.Errorf("CMD-RESP without response payload: %v", final.Body)
	}

	// the virtual UAV shows up in UAV-LIST
	req = model.NewMessage(model.TypeUAVList, nil)
	peer.send(t, req)
	list := peer.waitFor(t, 5*time.Second, func(m *model.Message) bool {
		return m.Refs == req.ID
	})
	ids, err := list.StringSlice("ids")
	if err != nil || len(ids) != 1 || ids[0] != "VIRT-0" {
		t.Errorf("unexpected UAV list: %v (%v)", list.Body["ids"], err)
	}
}
