package overlay

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Arceliar/phony"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
	"github.com/shizukutanaka/mate/internal/transport"
)

// Transport carries encoded messages for a node
type Transport interface {
	Listen(addr string) error
	LocalAddr() protocol.Address
	Send(msg *protocol.Message, to protocol.Address) error
	Close() error
}

// Events are the node's notifications to the application. Callbacks run on
// the node's control context: they must not block and must not call Close or
// Contacts.
type Events struct {
	OnListening func(addr protocol.Address)
	OnMessage   func(from ContactInfo, payload []byte)
	OnNetError  func(err error)
	OnNetClose  func()
	OnDataError func(err error)
}

// LookupResult is the outcome of a successful lookup. Relay is the contact
// that reported the target, or nil when the target was known locally.
type LookupResult struct {
	Contact ContactInfo
	Relay   *ContactInfo
}

// Option configures a Node
type Option func(*Node)

// WithEvents installs application callbacks
func WithEvents(events Events) Option {
	return func(n *Node) {
		n.events = events
	}
}

// WithTransport replaces the UDP transport. The transport must deliver
// inbound traffic to Node.TransportHandler.
func WithTransport(t Transport) Option {
	return func(n *Node) {
		n.transport = t
	}
}

// WithRegistry registers the node metrics on reg instead of a private registry
func WithRegistry(reg *prometheus.Registry) Option {
	return func(n *Node) {
		n.registry = reg
	}
}

// Node is one participant of the overlay
type Node struct {
	phony.Inbox

	logger    *zap.Logger
	config    Config
	events    Events
	registry  *prometheus.Registry
	metrics   *Metrics
	transport Transport

	id    NodeID
	local atomic.Pointer[protocol.Address]

	table       *RoutingTable
	pending     *Registry
	unreachable *NegativeCache
	lookups     map[*lookup]struct{}

	starting bool
	started  bool
	closed   bool
}

// NewNode creates a node. Zero config values take their defaults.
func NewNode(logger *zap.Logger, config Config, opts ...Option) (*Node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	id := NewNodeID()
	if config.NodeID != "" {
		parsed, err := ParseNodeID(config.NodeID)
		if err != nil {
			return nil, mateerrors.Wrap(mateerrors.KindConfiguration, "new node", err)
		}
		id = parsed
	}

	n := &Node{
		logger:  logger.With(zap.Stringer("node_id", id)),
		config:  config,
		id:      id,
		table:   NewRoutingTable(id, config.BucketSize),
		pending: NewRegistry(),
		lookups: make(map[*lookup]struct{}),
	}
	n.unreachable = newNegativeCache(n)

	for _, opt := range opts {
		opt(n)
	}
	if n.registry == nil {
		n.registry = prometheus.NewRegistry()
	}
	n.metrics = NewMetrics(n.registry)
	if n.transport == nil {
		n.transport = transport.NewUDPTransport(n.logger.Named("transport"), netHandler{n})
	}

	return n, nil
}

// ID returns the local identifier
func (n *Node) ID() NodeID {
	return n.id
}

// Addr returns the local address. It is zero until Start succeeds.
func (n *Node) Addr() protocol.Address {
	if addr := n.local.Load(); addr != nil {
		return *addr
	}
	return protocol.Address{}
}

// Registry returns the prometheus registry holding the node metrics
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// TransportHandler returns the receiver for inbound transport traffic
func (n *Node) TransportHandler() transport.Handler {
	return netHandler{n}
}

// Start binds the transport and begins serving. A failed bind leaves the
// node unstarted so Start may be retried.
func (n *Node) Start() error {
	var err error
	phony.Block(n, func() {
		switch {
		case n.closed:
			err = mateerrors.New(mateerrors.KindClosed, "start", "node is closed")
		case n.started || n.starting:
			err = mateerrors.New(mateerrors.KindTransport, "start", "node already started")
		default:
			n.starting = true
		}
	})
	if err != nil {
		return err
	}

	bind := net.JoinHostPort(n.config.Host, strconv.Itoa(n.config.NetworkPort))
	if err := n.transport.Listen(bind); err != nil {
		phony.Block(n, func() {
			n.starting = false
		})
		return err
	}

	bound := n.transport.LocalAddr()
	local := protocol.Address{IP: announceHost(n.config.Host), Port: bound.Port}
	n.local.Store(&local)

	var closed bool
	phony.Block(n, func() {
		n.starting = false
		if n.closed {
			closed = true
			return
		}
		n.started = true
		n._emitListening(local)
	})
	if closed {
		n.transport.Close()
		return mateerrors.New(mateerrors.KindClosed, "start", "node closed while starting")
	}

	n.logger.Info("Node started",
		zap.Stringer("address", local),
		zap.Int("fanout", n.config.MaxClosestNodes),
		zap.Duration("ping_interval", n.config.PingInterval),
	)
	return nil
}

// Close stops the node. Outstanding API calls fail with ErrClosed and every
// timer is cancelled. It must not be called from an event callback.
func (n *Node) Close() error {
	var already bool
	phony.Block(n, func() {
		already = n.closed
		n._shutdown()
	})
	if already {
		return nil
	}

	err := n.transport.Close()
	n.logger.Info("Node stopped")
	return err
}

func (n *Node) _shutdown() {
	if n.closed {
		return
	}
	n.closed = true

	closedErr := mateerrors.New(mateerrors.KindClosed, "close", "node closed")
	for l := range n.lookups {
		n._finishLookup(l, LookupResult{}, closedErr)
	}
	for _, op := range n.pending.Drain() {
		if op.OnFail != nil {
			op.OnFail(closedErr)
		}
	}
	for _, c := range n.table.Contacts() {
		c.stopTimers()
		n.table.Remove(c.ID)
	}
	n.unreachable.Close()
	n._syncGauges()
}

// Lookup resolves id to a contact
func (n *Node) Lookup(ctx context.Context, id NodeID) (LookupResult, error) {
	return await(ctx, n, func(done func(LookupResult, error)) {
		n._lookup(id, done)
	})
}

// DirectConnect performs a direct handshake with addr and returns the
// identifier of the node that answered
func (n *Node) DirectConnect(ctx context.Context, addr protocol.Address) (NodeID, error) {
	return await(ctx, n, func(done func(NodeID, error)) {
		n._directConnect(addr, done)
	})
}

// Send delivers payload to the node with identifier id and waits for its acknowledgment
func (n *Node) Send(ctx context.Context, id NodeID, payload []byte) error {
	if len(payload) == 0 {
		return mateerrors.New(mateerrors.KindProtocol, "send", "empty payload")
	}
	data := append([]byte(nil), payload...)
	_, err := await(ctx, n, func(done func(struct{}, error)) {
		n._sendPayload(id, data, func(err error) {
			done(struct{}{}, err)
		})
	})
	return err
}

// Contacts returns a snapshot of the routing table in insertion order
func (n *Node) Contacts(ctx context.Context) ([]ContactInfo, error) {
	return await(ctx, n, func(done func([]ContactInfo, error)) {
		contacts := n.table.Contacts()
		infos := make([]ContactInfo, 0, len(contacts))
		for _, c := range contacts {
			infos = append(infos, c.Info())
		}
		done(infos, nil)
	})
}

// await posts start to the node and waits for the first result it reports
func await[T any](ctx context.Context, n *Node, start func(done func(T, error))) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	results := make(chan outcome, 1)

	n.Act(nil, func() {
		var fired bool
		done := func(value T, err error) {
			if fired {
				return
			}
			fired = true
			results <- outcome{value, err}
		}
		var zero T
		switch {
		case n.closed:
			done(zero, mateerrors.New(mateerrors.KindClosed, "call", "node closed"))
		case !n.started:
			done(zero, mateerrors.New(mateerrors.KindClosed, "call", "node not started"))
		default:
			start(done)
		}
	})

	select {
	case r := <-results:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (n *Node) now() time.Time {
	return time.Now()
}

func newMessageID() string {
	return uuid.NewString()
}

func (n *Node) localInfo() ContactInfo {
	return ContactInfo{
		ID:         n.id,
		Address:    n.Addr(),
		State:      protocol.StateDirect,
		LastActive: n.now(),
	}
}

// _register tracks op under id and fails it after timeout
func (n *Node) _register(id string, op *PendingOp, timeout time.Duration) {
	if n.closed {
		if op.OnFail != nil {
			op.OnFail(mateerrors.New(mateerrors.KindClosed, "register", "node closed"))
		}
		return
	}

	op.timer = n.after(timeout, func() {
		n._expire(id, timeout)
	})
	if err := n.pending.Put(id, op); err != nil {
		op.timer.Stop()
		if op.OnFail != nil {
			op.OnFail(err)
		}
		return
	}
	n._syncGauges()
}

// _expire fails the operation registered under id as timed out
func (n *Node) _expire(id string, timeout time.Duration) {
	op, ok := n.pending.Get(id)
	if !ok {
		return
	}
	n.pending.Remove(id)
	n._syncGauges()
	if op.OnFail != nil {
		op.OnFail(mateerrors.Newf(mateerrors.KindTimeout, op.Expect.String(),
			"no reply within %s", timeout))
	}
}

func (n *Node) _resolve(id string, kind protocol.Type) (*PendingOp, bool) {
	op, ok := n.pending.Resolve(id, kind)
	if ok {
		n._syncGauges()
	}
	return op, ok
}

func (n *Node) _unregister(id string) {
	n.pending.Remove(id)
	n._syncGauges()
}

func (n *Node) _syncGauges() {
	n.metrics.pending.Set(float64(n.pending.Len()))
	n.metrics.contacts.Set(float64(n.table.Len()))
}

// _send transmits msg to the given address, wrapping it in a relay forward
// when relay is set
func (n *Node) _send(msg *protocol.Message, to protocol.Address, relay *protocol.Address) {
	if relay == nil {
		n._transmit(msg, to)
		return
	}

	payload, err := protocol.Encode(msg)
	if err != nil {
		mateerrors.Log(n.logger, err, "Failed to encode relayed message",
			zap.Stringer("type", msg.Type))
		return
	}
	target := to
	n._transmit(&protocol.Message{
		Type:           protocol.RelayForward,
		ConnectAddress: &target,
		Payload:        payload,
	}, *relay)
}

func (n *Node) _transmit(msg *protocol.Message, to protocol.Address) {
	if n.closed || !n.started {
		return
	}
	if err := n.transport.Send(msg, to); err != nil {
		mateerrors.Log(n.logger, err, "Failed to send message",
			zap.Stringer("type", msg.Type),
			zap.Stringer("address", to),
		)
		if mateerrors.KindOf(err) == mateerrors.KindTransport {
			n._emitNetError(err)
		}
		return
	}
	n.metrics.sent(msg.Type)
}

func (n *Node) _emitListening(addr protocol.Address) {
	if n.events.OnListening == nil {
		return
	}
	defer mateerrors.SafeRecover(n.logger, "listening callback")
	n.events.OnListening(addr)
}

func (n *Node) _emitMessage(from ContactInfo, payload []byte) {
	if n.events.OnMessage == nil {
		return
	}
	defer mateerrors.SafeRecover(n.logger, "message callback")
	n.events.OnMessage(from, payload)
}

func (n *Node) _emitNetError(err error) {
	if n.events.OnNetError == nil {
		return
	}
	defer mateerrors.SafeRecover(n.logger, "net error callback")
	n.events.OnNetError(err)
}

func (n *Node) _emitNetClose() {
	if n.events.OnNetClose == nil {
		return
	}
	defer mateerrors.SafeRecover(n.logger, "net close callback")
	n.events.OnNetClose()
}

func (n *Node) _emitDataError(err error) {
	if n.events.OnDataError == nil {
		return
	}
	defer mateerrors.SafeRecover(n.logger, "data error callback")
	n.events.OnDataError(err)
}

// announceHost picks the address advertised for a bind host. Wildcard hosts
// resolve to the address of the default route.
func announceHost(host string) string {
	ip := net.ParseIP(host)
	if host != "" && (ip == nil || !ip.IsUnspecified()) {
		return host
	}

	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return protocol.AddressFromUDP(addr).IP
	}
	return "127.0.0.1"
}
