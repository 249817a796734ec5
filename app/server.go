// Package app wires the server together: the message hub, the command
// execution manager, the device tree with its subscriptions, the registries
// and the observability plumbing. It owns the lifecycle of connected clients
// and managed UAVs.
package app

import (
	"context"
	"time"

	"github.com/flocklink/fleetd/core/command"
	"github.com/flocklink/fleetd/core/devices"
	"github.com/flocklink/fleetd/core/events"
	"github.com/flocklink/fleetd/core/hub"
	"github.com/flocklink/fleetd/core/logger"
	"github.com/flocklink/fleetd/core/metrics"
	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/core/registry"
	"github.com/flocklink/fleetd/internal/eventbus"
)

// Options configures a Server.
type Options struct {
	// Version is reported in SYS-VER responses.
	Version string
	// Commands configures the receipt timeout and sweep cadence.
	Commands command.Config
	// StatusWindow is the coalescing window for UAV-INF and DEV-INF
	// notifications. Zero disables coalescing entirely; every update goes
	// out on its own.
	StatusWindow time.Duration
	// Metrics receives fleet-size snapshots; message and command events
	// travel over the bus. Nil selects the no-op sink.
	Metrics metrics.Sink
	// Bus is the internal event bus. Nil creates a private one.
	Bus *eventbus.Bus
	Log logger.Logger
}

// Server is the fleet coordination server. One instance per process.
type Server struct {
	version string

	hub      *hub.Hub
	commands *command.Manager
	tree     *devices.Tree
	subs     *devices.SubscriptionManager

	clients     *registry.ClientRegistry
	uavs        *registry.UAVRegistry
	clocks      *registry.ClockRegistry
	connections *registry.ConnectionRegistry

	bus  *eventbus.Bus
	sink metrics.Sink
	log  logger.Logger
}

// New builds a fully wired Server from the given options.
func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NopSink{}
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.New()
	}
	log := opts.Log

	s := &Server{
		version:     opts.Version,
		clients:     registry.NewClientRegistry(),
		uavs:        registry.NewUAVRegistry(),
		clocks:      registry.NewClockRegistry(),
		connections: registry.NewConnectionRegistry(),
		tree:        devices.NewTree(),
		bus:         opts.Bus,
		sink:        opts.Metrics,
		log:         log,
	}

	s.hub = hub.New(s.clients, log)
	s.hub.EnableStatusBatching(opts.StatusWindow, s.broadcastUAVStatus)
	s.subs = devices.NewSubscriptionManager(s.tree, s.hub, opts.StatusWindow, log)

	s.commands = command.NewManager(opts.Commands, log)
	s.commands.OnFinished(s.commandFinished)
	s.commands.OnTimeout(s.commandTimedOut)

	// Every deployment gets the wall clock; drivers register further clocks
	// as they come online.
	s.clocks.Add("system", model.Clock{
		ID:             "system",
		Epoch:          time.Unix(0, 0).UTC(),
		TicksPerSecond: 1,
		Running:        true,
	})

	s.registerHandlers()
	return s
}

// Hub exposes the message hub, mainly so transports can dispatch through the
// server.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Commands exposes the command execution manager to drivers that hand out
// receipts.
func (s *Server) Commands() *command.Manager { return s.commands }

// Connections exposes the connection registry to drivers that manage
// external links.
func (s *Server) Connections() *registry.ConnectionRegistry { return s.connections }

// Clocks exposes the clock registry to drivers that maintain mission timers.
func (s *Server) Clocks() *registry.ClockRegistry { return s.clocks }

// Clients exposes the client registry so transports can attach their
// connected peers.
func (s *Server) Clients() *registry.ClientRegistry { return s.clients }

// Bus exposes the internal event bus carrying the server events.
func (s *Server) Bus() *eventbus.Bus { return s.bus }

// Run starts the background duties of the server and blocks until the
// context is cancelled: the command sweep loop and the registry change pumps
// that convert clock and connection updates into CLK-INF and CONN-INF
// notifications.
func (s *Server) Run(ctx context.Context) error {
	go s.commands.Run(ctx)
	go s.pumpClockChanges(ctx)
	go s.pumpConnectionChanges(ctx)

	<-ctx.Done()
	s.subs.Close()
	s.hub.Close()
	return ctx.Err()
}

// Dispatch routes one incoming message through the hub and publishes the
// handling event for the observability pipeline. Transports call this.
func (s *Server) Dispatch(msg *model.Message, sender *model.Client) *model.Message {
	start := time.Now()
	out := s.hub.Dispatch(msg, sender)
	ev := events.MessageHandled{Type: msg.Type, Duration: time.Since(start)}
	if sender != nil {
		ev.ClientID = sender.ID
	}
	s.bus.Publish(ev)
	return out
}

// ClientConnected implements the transport's client observer.
func (s *Server) ClientConnected(clientID string) {
	s.bus.Publish(events.ClientEvent{ClientID: clientID, Connected: true})
	s.recordFleet()
}

// ClientDisconnected drops everything the server holds on behalf of the
// departed client: its registry entry and its device tree subscriptions.
// Receipts the client was interested in keep running; their notifications
// are simply undeliverable.
func (s *Server) ClientDisconnected(clientID string) {
	s.clients.Remove(clientID)
	s.subs.RemoveClient(clientID)
	s.bus.Publish(events.ClientEvent{ClientID: clientID, Connected: false})
	s.recordFleet()
}

// RegisterUAV adds the UAV to the registry and creates its device tree
// subtree. Drivers call this when a vehicle comes online.
func (s *Server) RegisterUAV(u *model.UAV) {
	s.uavs.Add(u.ID, u)
	s.tree.AddUAV(u.ID)
	s.recordFleet()
}

// DeregisterUAV removes the UAV and cascades: its device subtree vanishes
// and every subscription into that subtree is dropped. Clients learn about
// the missing paths through the failure entries of their next DEV-INF.
func (s *Server) DeregisterUAV(id string) {
	if _, ok := s.uavs.Remove(id); !ok {
		return
	}
	// The subtree must vanish before the subscriptions are swept: with this
	// order a concurrent Subscribe either still resolves the node and is then
	// swept, or fails to resolve. Nothing can be left subscribed to a path
	// that no longer exists.
	root := "/" + id
	s.tree.RemoveUAV(id)
	removed := s.subs.RemoveSubtree(root)
	for clientID, paths := range removed {
		s.log.Debugf("dropped %d subscription(s) of client %s under %s", len(paths), clientID, root)
	}
	s.recordFleet()
}

// UpdateUAVStatus records the new status of a UAV, mirrors it into the
// device tree and schedules the coalesced UAV-INF broadcast. Device channel
// changes flow to subscribers through the subscription manager.
func (s *Server) UpdateUAVStatus(status model.UAVStatus) error {
	u, err := s.uavs.FindByID(status.ID)
	if err != nil {
		return err
	}
	u.SetStatus(status)

	batch := s.tree.Begin()
	prefix := "/" + status.ID
	_ = batch.Set(prefix+"/battery/percentage", status.Battery)
	_ = batch.Set(prefix+"/gps/lat", status.Position.Lat)
	_ = batch.Set(prefix+"/gps/lon", status.Position.Lon)
	_ = batch.Set(prefix+"/gps/amsl", status.Position.AMSL)
	_ = batch.Set(prefix+"/gps/heading", status.Heading)
	changed := batch.Close()
	s.subs.NotifyChanged(changed)

	s.hub.RequestToSendUAVStatus(status.ID)
	return nil
}

// broadcastUAVStatus is the flush side of the status coalescing window: it
// builds a single UAV-INF notification for the merged id set and broadcasts
// it.
func (s *Server) broadcastUAVStatus(ids []string) {
	body := model.Body{"status": s.statusViews(ids)}
	msg := model.NewMessage(model.TypeUAVInf, body)
	if err := s.hub.SendMessage(msg, ""); err != nil {
		s.log.Warnf("broadcast UAV-INF: %v", err)
	}
}

func (s *Server) statusViews(ids []string) map[string]any {
	status := make(map[string]any, len(ids))
	for _, id := range ids {
		u, err := s.uavs.FindByID(id)
		if err != nil {
			continue
		}
		status[id] = u.Status().View()
	}
	return status
}

func (s *Server) commandFinished(r *command.Receipt) {
	response := r.Response()
	if response == nil {
		response = ""
	}
	body := model.Body{"id": r.ID, "response": response}
	msg := model.NewMessage(model.TypeCMDResp, body)
	for _, clientID := range r.ClientsToNotify() {
		if err := s.hub.SendMessage(msg, clientID); err != nil {
			s.log.Warnf("CMD-RESP for %s to %s: %v", r.ID, clientID, err)
		}
	}
	s.bus.Publish(events.CommandFinished{
		ReceiptID: r.ID,
		Age:       time.Since(r.CreatedAt),
		Clients:   len(r.ClientsToNotify()),
	})
}

func (s *Server) commandTimedOut(clientID string, receiptIDs []string) {
	msg := model.NewMessage(model.TypeCMDTimeout, model.Body{"ids": receiptIDs})
	if err := s.hub.SendMessage(msg, clientID); err != nil {
		s.log.Warnf("CMD-TIMEOUT to %s: %v", clientID, err)
	}
	s.bus.Publish(events.CommandTimedOut{ClientID: clientID, ReceiptIDs: receiptIDs})
}

func (s *Server) pumpClockChanges(ctx context.Context) {
	ch := s.clocks.Changed().Subscribe()
	defer s.clocks.Changed().Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.notifyClockChanged(ev)
		}
	}
}

func (s *Server) notifyClockChanged(ev registry.Event[model.Clock]) {
	if ev.Kind == registry.EntryRemoved {
		return
	}
	now := time.Now()
	body := model.Body{"status": map[string]any{ev.ID: ev.Entry.View(now)}}
	msg := model.NewMessage(model.TypeCLKInf, body)
	if err := s.hub.SendMessage(msg, ""); err != nil {
		s.log.Warnf("broadcast CLK-INF: %v", err)
	}
}

func (s *Server) pumpConnectionChanges(ctx context.Context) {
	ch := s.connections.Changed().Subscribe()
	defer s.connections.Changed().Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.notifyConnectionChanged(ev)
		}
	}
}

func (s *Server) notifyConnectionChanged(ev registry.Event[model.ConnectionEntry]) {
	if ev.Kind == registry.EntryRemoved {
		return
	}
	body := model.Body{"status": map[string]any{ev.ID: ev.Entry.View()}}
	msg := model.NewMessage(model.TypeCONNInf, body)
	if err := s.hub.SendMessage(msg, ""); err != nil {
		s.log.Warnf("broadcast CONN-INF: %v", err)
	}
}

func (s *Server) recordFleet() {
	ev := metrics.FleetEvent{UAVs: s.uavs.Len(), Clients: s.clients.Len(), Time: time.Now()}
	if err := s.sink.RecordFleet(ev); err != nil {
		s.log.Warnf("record fleet snapshot: %v", err)
	}
}

// findInRegistry resolves ids against a registry for ledger-style handlers,
// recording a failure with the given reason for each unknown id.
func findInRegistry[T any](reg *registry.Registry[T], id string, resp *model.Response, reason string) (T, bool) {
	entry, err := reg.FindByID(id)
	if err != nil {
		resp.AddFailure(id, reason)
		var zero T
		return zero, false
	}
	return entry, true
}
