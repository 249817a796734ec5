package app

import (
	"errors"
	"fmt"

	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/model"
)

// driverOps maps the broadcast-style message types onto the closed table of
// driver capabilities. Only types listed here are routed through the
// dispatcher.
var driverOps = map[string]model.DriverOp{
	model.TypeCMDReq:     model.OpSendCommand,
	model.TypeUAVLand:    model.OpSendLandingSignal,
	model.TypeUAVTakeoff: model.OpSendTakeoffSignal,
}

// DispatchToUAVs fans a multi-target request out to the drivers owning the
// addressed UAVs and folds every per-vehicle outcome into a single ledger
// response. One faulty driver never contaminates another driver's group, and
// no driver error escapes to the transport.
func (s *Server) DispatchToUAVs(msg *model.Message, sender *model.Client) (*model.Response, error) {
	op, ok := driverOps[msg.Type]
	if !ok {
		return nil, fmt.Errorf("no driver operation for message type %s", msg.Type)
	}
	ids, err := msg.StringSlice("ids")
	if err != nil {
		return nil, err
	}

	resp := s.hub.CreateResponseOrNotification(msg.Type, nil, msg)
	params := commandParams(msg.Body)

	drivers, groups := s.sortUAVsByDrivers(ids, resp)
	for _, driver := range drivers {
		uavs := groups[driver]
		if !driver.Supports(op) {
			failGroup(resp, uavs, "Operation not supported")
			continue
		}
		results, err := invokeDriver(driver, op, uavs, params)
		switch {
		case errors.Is(err, model.ErrNotSupported):
			failGroup(resp, uavs, "Operation not supported")
		case errors.Is(err, model.ErrNotImplemented):
			failGroup(resp, uavs, "Operation not implemented")
		case err != nil:
			s.log.Errorf("driver %T failed %s for %d UAV(s): %v", driver, op, len(uavs), err)
			failGroup(resp, uavs, fmt.Sprintf("Unexpected error: %v", err))
		default:
			s.collectOutcomes(resp, uavs, results, sender)
		}
	}
	return resp, nil
}

// sortUAVsByDrivers resolves the target ids and groups the found UAVs by
// their owning driver, preserving request order within each group. Unknown
// ids become ledger failures right away.
func (s *Server) sortUAVsByDrivers(ids []string, resp *model.Response) ([]model.Driver, map[model.Driver][]*model.UAV) {
	var drivers []model.Driver
	groups := make(map[model.Driver][]*model.UAV)
	for _, id := range ids {
		u, ok := findInRegistry(s.uavs, id, resp, "No such UAV")
		if !ok {
			continue
		}
		if _, seen := groups[u.Driver]; !seen {
			drivers = append(drivers, u.Driver)
		}
		groups[u.Driver] = append(groups[u.Driver], u)
	}
	return drivers, groups
}

// collectOutcomes interprets the per-vehicle results of one driver call.
// A true marks synchronous success, a receipt defers the resolution and
// subscribes the sender to its terminal notification, anything else is a
// failure described by its string form.
func (s *Server) collectOutcomes(resp *model.Response, uavs []*model.UAV, results map[string]any, sender *model.Client) {
	for _, u := range uavs {
		result, ok := results[u.ID]
		if !ok {
			resp.AddFailure(u.ID, "Missing result from driver")
			continue
		}
		switch v := result.(type) {
		case bool:
			if v {
				resp.AddSuccess(u.ID)
			} else {
				resp.AddFailure(u.ID, "false")
			}
		case *command.Receipt:
			resp.AddReceipt(u.ID, v.View())
			if sender != nil {
				v.AddClientToNotify(sender.ID)
			}
			s.commands.MarkClientsNotified(v.ID)
		case error:
			resp.AddFailure(u.ID, v.Error())
		case string:
			resp.AddFailure(u.ID, v)
		default:
			resp.AddFailure(u.ID, fmt.Sprintf("%v", v))
		}
	}
}

// invokeDriver calls the capability on the driver, converting a panicking
// driver into an ordinary error so the remaining groups still execute.
func invokeDriver(d model.Driver, op model.DriverOp, uavs []*model.UAV, params map[string]any) (results map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("driver panic: %v", r)
		}
	}()
	switch op {
	case model.OpSendCommand:
		return d.SendCommand(uavs, params)
	case model.OpSendLandingSignal:
		return d.SendLandingSignal(uavs, params)
	case model.OpSendTakeoffSignal:
		return d.SendTakeoffSignal(uavs, params)
	default:
		return nil, model.ErrNotImplemented
	}
}

func failGroup(resp *model.Response, uavs []*model.UAV, reason string) {
	for _, u := range uavs {
		resp.AddFailure(u.ID, reason)
	}
}

// commandParams strips the envelope keys from the body, leaving only the
// free-form parameters forwarded to the driver.
func commandParams(body model.Body) map[string]any {
	params := make(map[string]any, len(body))
	for k, v := range body {
		if k == "type" || k == "ids" {
			continue
		}
		params[k] = v
	}
	return params
}
