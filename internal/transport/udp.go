package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

// Handler receives everything the socket produces.
// Calls are made serially from the receive loop goroutine.
type Handler interface {
	HandleMessage(msg *protocol.Message, from protocol.Address)
	HandleDecodeError(err error, from protocol.Address)
	HandleNetError(err error)
	HandleClose()
}

// UDPTransport implements the datagram transport over a single UDP socket
type UDPTransport struct {
	logger  *zap.Logger
	handler Handler

	conn    *net.UDPConn
	running bool
	mu      sync.RWMutex
	done    chan struct{}
}

// NewUDPTransport creates a new UDP transport
func NewUDPTransport(logger *zap.Logger, handler Handler) *UDPTransport {
	return &UDPTransport{
		logger:  logger,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Listen binds the socket and starts the receive loop
func (t *UDPTransport) Listen(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return mateerrors.Wrap(mateerrors.KindTransport, "listen", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return mateerrors.Wrap(mateerrors.KindTransport, "listen", err)
	}

	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		conn.Close()
		return mateerrors.New(mateerrors.KindTransport, "listen", "transport already running")
	}
	t.conn = conn
	t.running = true
	t.mu.Unlock()

	go t.receiveLoop(conn)

	t.logger.Info("UDP transport listening", zap.String("address", conn.LocalAddr().String()))
	return nil
}

// LocalAddr returns the bound socket address
func (t *UDPTransport) LocalAddr() protocol.Address {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.conn == nil {
		return protocol.Address{}
	}
	return protocol.AddressFromUDP(t.conn.LocalAddr().(*net.UDPAddr))
}

// Send encodes msg and writes it as one datagram to the given address
func (t *UDPTransport) Send(msg *protocol.Message, to protocol.Address) error {
	t.mu.RLock()
	conn := t.conn
	running := t.running
	t.mu.RUnlock()

	if conn == nil || !running {
		return mateerrors.New(mateerrors.KindClosed, "send", "transport not started")
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	udpAddr, err := to.UDPAddr()
	if err != nil {
		return mateerrors.Wrap(mateerrors.KindTransport, "send", err)
	}

	if _, err := conn.WriteToUDP(data, udpAddr); err != nil {
		return mateerrors.Wrap(mateerrors.KindTransport, "send", fmt.Errorf("write to %s: %w", to, err))
	}
	return nil
}

// Close stops the transport. The handler receives HandleClose once the
// receive loop has exited.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	conn := t.conn
	t.mu.Unlock()

	err := conn.Close()
	<-t.done
	return err
}

func (t *UDPTransport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *UDPTransport) receiveLoop(conn *net.UDPConn) {
	defer close(t.done)
	defer t.handler.HandleClose()

	buffer := make([]byte, 65536)

	for {
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !t.isRunning() {
				return
			}
			t.logger.Warn("Failed to read UDP packet", zap.Error(err))
			t.handler.HandleNetError(mateerrors.Wrap(mateerrors.KindTransport, "receive", err))
			continue
		}

		from := protocol.AddressFromUDP(addr)

		// Decoded byte strings may alias the input
		datagram := append([]byte(nil), buffer[:n]...)

		msg, err := protocol.Decode(datagram)
		if err != nil {
			t.logger.Debug("Failed to decode message",
				zap.String("address", from.String()),
				zap.Error(err),
			)
			t.handler.HandleDecodeError(err, from)
			continue
		}

		t.handler.HandleMessage(msg, from)
	}
}
