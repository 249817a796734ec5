package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/infra/logger"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (r *recordingSink) SendMessage(msg *model.Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) messages() []*model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Message(nil), r.msgs...)
}

func (r *recordingSink) byType(typ string) []*model.Message {
	var out []*model.Message
	for _, m := range r.messages() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// scriptedDriver returns canned per-UAV results, or fails the whole call.
type scriptedDriver struct {
	unsupported bool
	results     map[string]any
	err         error
	panicking   bool

	mu     sync.Mutex
	params map[string]any
}

func (d *scriptedDriver) Supports(model.DriverOp) bool { return !d.unsupported }

func (d *scriptedDriver) call(uavs []*model.UAV, params map[string]any) (map[string]any, error) {
	if d.panicking {
		panic("wire fell off")
	}
	d.mu.Lock()
	d.params = params
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	out := make(map[string]any)
	for _, u := range uavs {
		if v, ok := d.results[u.ID]; ok {
			out[u.ID] = v
		}
	}
	return out, nil
}

func (d *scriptedDriver) SendCommand(uavs []*model.UAV, params map[string]any) (map[string]any, error) {
	return d.call(uavs, params)
}

func (d *scriptedDriver) SendLandingSignal(uavs []*model.UAV, params map[string]any) (map[string]any, error) {
	return d.call(uavs, params)
}

func (d *scriptedDriver) SendTakeoffSignal(uavs []*model.UAV, params map[string]any) (map[string]any, error) {
	return d.call(uavs, params)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Options{
		Version:      "test",
		Commands:     command.Config{TimeoutSeconds: 5, SweepIntervalSeconds: 0.05},
		StatusWindow: 10 * time.Millisecond,
		Log:          logger.NopLogger{},
	})
}

func addClient(s *Server, id string) (*model.Client, *recordingSink) {
	sink := &recordingSink{}
	c := &model.Client{ID: id, Sink: sink}
	s.clients.Add(id, c)
	return c, sink
}

func addUAV(s *Server, id string, d model.Driver) *model.UAV {
	u := model.NewUAV(id, d, model.UAVStatus{ID: id})
	s.RegisterUAV(u)
	return u
}

func commandRequest(ids []string) *model.Message {
	return model.NewMessage(model.TypeCMDReq, model.Body{"ids": ids, "command": "arm"})
}

func TestDispatchToUAVsMixedOutcomes(t *testing.T) {
	s := newTestServer(t)
	sender, _ := addClient(s, "c1")

	r := s.commands.NewReceipt(0)
	d := &scriptedDriver{results: map[string]any{
		"v1": true,
		"v2": r,
		"v3": "battery too low",
	}}
	addUAV(s, "v1", d)
	addUAV(s, "v2", d)
	addUAV(s, "v3", d)

	resp, err := s.DispatchToUAVs(commandRequest([]string{"v1", "v2", "v3", "ghost"}), sender)
	require.NoError(t, err)

	assert.Equal(t, []string{"v1"}, resp.Successes())

	view, ok := resp.Receipt("v2")
	require.True(t, ok)
	assert.Equal(t, r.ID, view["id"])
	assert.Equal(t, []string{"c1"}, r.ClientsToNotify())

	reason, ok := resp.FailureReason("v3")
	require.True(t, ok)
	assert.Equal(t, "battery too low", reason)

	reason, ok = resp.FailureReason("ghost")
	require.True(t, ok)
	assert.Equal(t, "No such UAV", reason)

	assert.Equal(t, 4, resp.OutcomeCount())
}

func TestDispatchToUAVsForwardsParameters(t *testing.T) {
	s := newTestServer(t)
	d := &scriptedDriver{results: map[string]any{"v1": true}}
	addUAV(s, "v1", d)

	msg := model.NewMessage(model.TypeCMDReq, model.Body{
		"ids":     []string{"v1"},
		"command": "goto",
		"lat":     47.5,
	})
	_, err := s.DispatchToUAVs(msg, nil)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"command": "goto", "lat": 47.5}, d.params)
}

func TestDispatchToUAVsUnsupportedGroupIsolated(t *testing.T) {
	s := newTestServer(t)
	good := &scriptedDriver{results: map[string]any{"v1": true}}
	bad := &scriptedDriver{unsupported: true}
	addUAV(s, "v1", good)
	addUAV(s, "v2", bad)

	resp, err := s.DispatchToUAVs(commandRequest([]string{"v1", "v2"}), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"v1"}, resp.Successes())
	reason, ok := resp.FailureReason("v2")
	require.True(t, ok)
	assert.Equal(t, "Operation not supported", reason)
}

func TestDispatchToUAVsDriverErrors(t *testing.T) {
	cases := []struct {
		name   string
		driver *scriptedDriver
		reason string
	}{
		{"not implemented", &scriptedDriver{err: model.ErrNotImplemented}, "Operation not implemented"},
		{"not supported", &scriptedDriver{err: model.ErrNotSupported}, "Operation not supported"},
		{"unexpected", &scriptedDriver{err: errors.New("link down")}, "Unexpected error: link down"},
		{"panic", &scriptedDriver{panicking: true}, "Unexpected error: driver panic: wire fell off"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			addUAV(s, "v1", tc.driver)
			addUAV(s, "v2", tc.driver)

			resp, err := s.DispatchToUAVs(commandRequest([]string{"v1", "v2"}), nil)
			require.NoError(t, err)

			for _, id := range []string{"v1", "v2"} {
				reason, ok := resp.FailureReason(id)
				require.True(t, ok, id)
				assert.Equal(t, tc.reason, reason)
			}
		})
	}
}

func TestDispatchToUAVsFaultyDriverDoesNotContaminate(t *testing.T) {
	s := newTestServer(t)
	good := &scriptedDriver{results: map[string]any{"v2": true}}
	addUAV(s, "v1", &scriptedDriver{panicking: true})
	addUAV(s, "v2", good)

	resp, err := s.DispatchToUAVs(commandRequest([]string{"v1", "v2"}), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"v2"}, resp.Successes())
	_, failed := resp.FailureReason("v1")
	assert.True(t, failed)
}

func TestDispatchToUAVsMissingResult(t *testing.T) {
	s := newTestServer(t)
	d := &scriptedDriver{results: map[string]any{}}
	addUAV(s, "v1", d)

	resp, err := s.DispatchToUAVs(commandRequest([]string{"v1"}), nil)
	require.NoError(t, err)

	reason, ok := resp.FailureReason("v1")
	require.True(t, ok)
	assert.Equal(t, "Missing result from driver", reason)
}

func TestDispatchMalformedBodyBecomesNAK(t *testing.T) {
	s := newTestServer(t)
	sender, _ := addClient(s, "c1")

	msg := model.NewMessage(model.TypeCMDReq, model.Body{"command": "arm"})
	out := s.Dispatch(msg, sender)
	require.NotNil(t, out)
	assert.Equal(t, model.TypeACKNAK, out.Type)
	assert.Equal(t, msg.ID, out.Refs)
}

func TestDispatchReceiptFinishNotifiesSender(t *testing.T) {
	s := newTestServer(t)
	sender, sink := addClient(s, "c1")

	r := s.commands.NewReceipt(time.Minute)
	d := &scriptedDriver{results: map[string]any{"v1": r}}
	addUAV(s, "v1", d)

	_, err := s.DispatchToUAVs(commandRequest([]string{"v1"}), sender)
	require.NoError(t, err)

	s.commands.Finish(r.ID, "armed")

	msgs := sink.byType(model.TypeCMDResp)
	require.Len(t, msgs, 1)
	assert.Equal(t, r.ID, msgs[0].Body["id"])
	assert.Equal(t, "armed", msgs[0].Body["response"])
}
