package hub

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/core/registry"
	"github.com/flocklink/fleetd/infra/logger"
)

type recordingSink struct {
	mu       sync.Mutex
	messages []*model.Message
}

func (s *recordingSink) SendMessage(msg *model.Message) error {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func newTestHub() (*Hub, *registry.ClientRegistry) {
	clients := registry.NewClientRegistry()
	return New(clients, logger.NopLogger{}), clients
}

func TestDispatchRoutesToHandler(t *testing.T) {
	h, _ := newTestHub()
	h.Register([]string{model.TypeSYSVer}, func(msg *model.Message, _ *model.Client, _ *Hub) (any, error) {
		return model.Body{"software": "fleetd", "version": "1.0.0"}, nil
	})

	req := model.NewMessage(model.TypeSYSVer, nil)
	out := h.Dispatch(req, nil)
	require.NotNil(t, out)
	require.Equal(t, model.TypeSYSVer, out.Type)
	require.Equal(t, req.ID, out.Refs)
	require.Equal(t, "fleetd", out.Body["software"])
}

func TestDispatchUnknownTypeYieldsNAK(t *testing.T) {
	h, _ := newTestHub()
	req := model.NewMessage("NO-SUCH", nil)
	out := h.Dispatch(req, nil)
	require.NotNil(t, out)
	require.Equal(t, model.TypeACKNAK, out.Type)
	require.Equal(t, req.ID, out.Refs)
	require.Contains(t, out.Body["reason"], "unsupported message type")
}

func TestDispatchHandlerErrorYieldsNAK(t *testing.T) {
	h, _ := newTestHub()
	h.Register([]string{"BOOM"}, func(*model.Message, *model.Client, *Hub) (any, error) {
		return nil, errors.New("broken body")
	})
	out := h.Dispatch(model.NewMessage("BOOM", nil), nil)
	require.Equal(t, model.TypeACKNAK, out.Type)
	require.Equal(t, "broken body", out.Body["reason"])
}

func TestRegisterOverwritesPreviousHandler(t *testing.T) {
	h, _ := newTestHub()
	h.Register([]string{"X"}, func(*model.Message, *model.Client, *Hub) (any, error) {
		return model.Body{"from": "first"}, nil
	})
	h.Register([]string{"X"}, func(*model.Message, *model.Client, *Hub) (any, error) {
		return model.Body{"from": "second"}, nil
	})
	out := h.Dispatch(model.NewMessage("X", nil), nil)
	require.Equal(t, "second", out.Body["from"])
}

func TestDispatchHandlerMayReturnFullResponse(t *testing.T) {
	h, _ := newTestHub()
	h.Register([]string{model.TypeCMDInf}, func(msg *model.Message, _ *model.Client, hub *Hub) (any, error) {
		resp := hub.CreateResponseOrNotification(model.TypeCMDInf, model.Body{"receipts": map[string]any{}}, msg)
		return resp, nil
	})
	req := model.NewMessage(model.TypeCMDInf, nil)
	out := h.Dispatch(req, nil)
	require.Equal(t, model.TypeCMDInf, out.Type)
	require.Equal(t, req.ID, out.Refs)
}

func TestSendMessageUnicastAndBroadcast(t *testing.T) {
	h, clients := newTestHub()
	s1 := &recordingSink{}
	s2 := &recordingSink{}
	clients.Add("c1", &model.Client{ID: "c1", Sink: s1})
	clients.Add("c2", &model.Client{ID: "c2", Sink: s2})

	msg := model.NewMessage(model.TypeUAVInf, nil)
	require.NoError(t, h.SendMessage(msg, "c1"))
	require.Equal(t, 1, s1.count())
	require.Equal(t, 0, s2.count())

	require.NoError(t, h.SendMessage(msg, ""))
	require.Equal(t, 2, s1.count())
	require.Equal(t, 1, s2.count())

	err := h.SendMessage(msg, "ghost")
	require.Error(t, err)
	require.True(t, model.IsNotFound(err))
}

func TestStatusBatchingCoalesces(t *testing.T) {
	h, _ := newTestHub()
	var mu sync.Mutex
	var batches [][]string
	h.EnableStatusBatching(30*time.Millisecond, func(ids []string) {
		sort.Strings(ids)
		mu.Lock()
		batches = append(batches, ids)
		mu.Unlock()
	})
	defer h.Close()

	h.RequestToSendUAVStatus("v1")
	h.RequestToSendUAVStatus("v2")
	h.RequestToSendUAVStatus("v2", "v3")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"v1"}, batches[0])
	require.Equal(t, []string{"v2", "v3"}, batches[1])
}

func TestAcknowledge(t *testing.T) {
	h, _ := newTestHub()
	req := model.NewMessage(model.TypeSYSPing, nil)
	ack := h.Acknowledge(req)
	require.Equal(t, model.TypeACKACK, ack.Type)
	require.Equal(t, req.ID, ack.Refs)
}
