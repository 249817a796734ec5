package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/flocklink/fleetd/core/hub"
	"github.com/flocklink/fleetd/core/model"
)

// registerHandlers binds the complete message catalog to the hub. Every
// multi-target operation answers with a ledger response so one bad id never
// fails the whole request.
func (s *Server) registerHandlers() {
	s.hub.Register([]string{model.TypeCLKInf}, s.handleCLKInf)
	s.hub.Register([]string{model.TypeCLKList}, s.handleCLKList)
	s.hub.Register([]string{model.TypeCMDDel}, s.handleCMDDel)
	s.hub.Register([]string{model.TypeCMDInf}, s.handleCMDInf)
	s.hub.Register([]string{model.TypeCONNInf}, s.handleCONNInf)
	s.hub.Register([]string{model.TypeCONNList}, s.handleCONNList)
	s.hub.Register([]string{model.TypeDEVInf}, s.handleDEVInf)
	s.hub.Register([]string{model.TypeDEVList}, s.handleDEVList)
	s.hub.Register([]string{model.TypeDEVListSub}, s.handleDEVListSub)
	s.hub.Register([]string{model.TypeDEVSub}, s.handleDEVSub)
	s.hub.Register([]string{model.TypeDEVUnsub}, s.handleDEVUnsub)
	s.hub.Register([]string{model.TypeSYSPing}, s.handleSYSPing)
	s.hub.Register([]string{model.TypeSYSVer}, s.handleSYSVer)
	s.hub.Register([]string{model.TypeUAVInf}, s.handleUAVInf)
	s.hub.Register([]string{model.TypeUAVList}, s.handleUAVList)
	s.hub.Register(
		[]string{model.TypeCMDReq, model.TypeUAVLand, model.TypeUAVTakeoff},
		s.handleUAVOperation,
	)
}

func (s *Server) handleCLKInf(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeCLKInf, model.Body{}, msg)
	status := make(map[string]any)
	now := time.Now()
	for _, id := range ids {
		clk, ok := findInRegistry(s.clocks, id, resp, "No such clock")
		if !ok {
			continue
		}
		status[id] = clk.View(now)
	}
	resp.Body["status"] = status
	return resp, nil
}

func (s *Server) handleCLKList(_ *model.Message, _ *model.Client, _ *hub.Hub) (any, error) {
	return model.Body{"ids": s.clocks.IDs()}, nil
}

// handleCMDDel cancels outstanding receipts. Cancellation is silent for the
// other interested clients; only the ledger of this response reports it.
func (s *Server) handleCMDDel(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeCMDDel, nil, msg)
	for _, id := range ids {
		r, err := s.commands.FindByID(id)
		if err != nil {
			resp.AddFailure(id, "No such receipt")
			continue
		}
		s.commands.Cancel(r)
		resp.AddSuccess(id)
	}
	return resp, nil
}

func (s *Server) handleCMDInf(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeCMDInf, model.Body{}, msg)
	receipts := make(map[string]any)
	for _, id := range ids {
		r, err := s.commands.FindByID(id)
		if err != nil {
			resp.AddFailure(id, "No such receipt")
			continue
		}
		receipts[id] = r.View()
	}
	resp.Body["receipts"] = receipts
	return resp, nil
}

func (s *Server) handleCONNInf(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeCONNInf, model.Body{}, msg)
	status := make(map[string]any)
	for _, id := range ids {
		conn, ok := findInRegistry(s.connections, id, resp, "No such connection")
		if !ok {
			continue
		}
		status[id] = conn.View()
	}
	resp.Body["status"] = status
	return resp, nil
}

func (s *Server) handleCONNList(_ *model.Message, _ *model.Client, _ *hub.Hub) (any, error) {
	return model.Body{"ids": s.connections.IDs()}, nil
}

func (s *Server) handleDEVInf(msg *model.Message, _ *model.Client, _ *hub.Hub) (any, error) {
	paths, err := msg.StringSlice("paths")
	if err != nil {
		return nil, err
	}
	return s.subs.CreateDEVINFMessageFor(paths, msg), nil
}

func (s *Server) handleDEVList(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeDEVList, model.Body{}, msg)
	devices := make(map[string]any)
	for _, id := range ids {
		view, err := s.tree.View("/" + id)
		if err != nil {
			resp.AddFailure(id, "No such UAV")
			continue
		}
		devices[id] = view
	}
	resp.Body["devices"] = devices
	return resp, nil
}

func (s *Server) handleDEVListSub(msg *model.Message, sender *model.Client, _ *hub.Hub) (any, error) {
	if sender == nil {
		return nil, errors.New("subscriptions require an identified client")
	}
	var filter []string
	if _, present := msg.Body["pathFilter"]; present {
		var err error
		filter, err = msg.StringSlice("pathFilter")
		if err != nil {
			return nil, err
		}
	}
	paths := s.subs.ListSubscriptions(sender.ID, filter)
	if paths == nil {
		paths = []string{}
	}
	return model.Body{"paths": paths}, nil
}

func (s *Server) handleDEVSub(msg *model.Message, sender *model.Client, h *hub.Hub) (any, error) {
	if sender == nil {
		return nil, errors.New("subscriptions require an identified client")
	}
	paths, err := msg.StringSlice("paths")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeDEVSub, nil, msg)
	for _, path := range paths {
		if err := s.subs.Subscribe(sender.ID, path); err != nil {
			resp.AddFailure(path, "No such device tree path")
			continue
		}
		resp.AddSuccess(path)
	}
	return resp, nil
}

// handleDEVUnsub removes subscriptions. With removeAll a path is dropped
// entirely no matter how many times it was subscribed; with includeSubtrees
// every subscribed path under a requested one is unsubscribed as well.
func (s *Server) handleDEVUnsub(msg *model.Message, sender *model.Client, h *hub.Hub) (any, error) {
	if sender == nil {
		return nil, errors.New("subscriptions require an identified client")
	}
	paths, err := msg.StringSlice("paths")
	if err != nil {
		return nil, err
	}
	removeAll := msg.Bool("removeAll", false)
	if msg.Bool("includeSubtrees", false) {
		paths = s.subs.ListSubscriptions(sender.ID, paths)
	}
	resp := h.CreateResponseOrNotification(model.TypeDEVUnsub, nil, msg)
	for _, path := range paths {
		err := s.subs.Unsubscribe(sender.ID, path, removeAll)
		switch {
		case errors.Is(err, model.ErrNoSuchPath):
			resp.AddFailure(path, "No such device tree path")
		case errors.Is(err, model.ErrClientNotSubscribed):
			resp.AddFailure(path, "Not subscribed to this path")
		case err != nil:
			resp.AddFailure(path, fmt.Sprintf("Unexpected error: %v", err))
		default:
			resp.AddSuccess(path)
		}
	}
	return resp, nil
}

func (s *Server) handleSYSPing(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	return h.Acknowledge(msg), nil
}

func (s *Server) handleSYSVer(_ *model.Message, _ *model.Client, _ *hub.Hub) (any, error) {
	return model.Body{"software": "fleetd", "version": s.version}, nil
}

func (s *Server) handleUAVInf(msg *model.Message, _ *model.Client, h *hub.Hub) (any, error) {
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}
	resp := h.CreateResponseOrNotification(model.TypeUAVInf, model.Body{}, msg)
	status := make(map[string]any)
	for _, id := range ids {
		u, ok := findInRegistry(s.uavs, id, resp, "No such UAV")
		if !ok {
			continue
		}
		status[id] = u.Status().View()
	}
	resp.Body["status"] = status
	return resp, nil
}

func (s *Server) handleUAVList(_ *model.Message, _ *model.Client, _ *hub.Hub) (any, error) {
	return model.Body{"ids": s.uavs.IDs()}, nil
}

func (s *Server) handleUAVOperation(msg *model.Message, sender *model.Client, _ *hub.Hub) (any, error) {
	resp, err := s.DispatchToUAVs(msg, sender)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
