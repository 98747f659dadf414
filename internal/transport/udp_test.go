package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	mateerrors "github.com/shizukutanaka/mate/internal/errors"
	"github.com/shizukutanaka/mate/internal/protocol"
)

type received struct {
	msg  *protocol.Message
	from protocol.Address
}

type recordingHandler struct {
	messages     chan received
	decodeErrors chan error
	closed       chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		messages:     make(chan received, 16),
		decodeErrors: make(chan error, 16),
		closed:       make(chan struct{}),
	}
}

func (h *recordingHandler) HandleMessage(msg *protocol.Message, from protocol.Address) {
	h.messages <- received{msg: msg, from: from}
}

func (h *recordingHandler) HandleDecodeError(err error, from protocol.Address) {
	h.decodeErrors <- err
}

func (h *recordingHandler) HandleNetError(err error) {}

func (h *recordingHandler) HandleClose() {
	close(h.closed)
}

func startTransport(t *testing.T) (*UDPTransport, *recordingHandler) {
	t.Helper()
	handler := newRecordingHandler()
	tr := NewUDPTransport(zaptest.NewLogger(t), handler)
	require.NoError(t, tr.Listen("127.0.0.1:0"))
	t.Cleanup(func() { tr.Close() })
	return tr, handler
}

// TestUDPTransportExchange tests a datagram round trip between two sockets
func TestUDPTransportExchange(t *testing.T) {
	a, _ := startTransport(t)
	b, handlerB := startTransport(t)

	msg := &protocol.Message{
		Type:      protocol.Mate,
		MessageID: "m1",
		NodeID:    bytes.Repeat([]byte{1}, protocol.IDLength),
		Payload:   []byte("I'm here!"),
	}
	require.NoError(t, a.Send(msg, b.LocalAddr()))

	select {
	case got := <-handlerB.messages:
		assert.Equal(t, msg, got.msg)
		assert.Equal(t, a.LocalAddr(), got.from)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}
}

// TestUDPTransportDecodeError tests that garbage reaches the decode error hook
func TestUDPTransportDecodeError(t *testing.T) {
	b, handlerB := startTransport(t)

	addr, err := b.LocalAddr().UDPAddr()
	require.NoError(t, err)
	conn, err := net.DialUDP("udp", nil, addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not bencode"))
	require.NoError(t, err)

	select {
	case err := <-handlerB.decodeErrors:
		assert.True(t, mateerrors.Is(err, mateerrors.ErrDecode))
	case <-time.After(2 * time.Second):
		t.Fatal("decode error not reported")
	}
	assert.Empty(t, handlerB.messages)
}

// TestUDPTransportLifecycle tests send before listen and close behaviour
func TestUDPTransportLifecycle(t *testing.T) {
	t.Run("SendBeforeListen", func(t *testing.T) {
		tr := NewUDPTransport(zaptest.NewLogger(t), newRecordingHandler())
		err := tr.Send(&protocol.Message{Type: protocol.Ping}, protocol.Address{IP: "127.0.0.1", Port: 1})
		assert.True(t, mateerrors.Is(err, mateerrors.ErrClosed))
		assert.True(t, tr.LocalAddr().IsZero())
		assert.NoError(t, tr.Close())
	})

	t.Run("Close", func(t *testing.T) {
		handler := newRecordingHandler()
		tr := NewUDPTransport(zaptest.NewLogger(t), handler)
		require.NoError(t, tr.Listen("127.0.0.1:0"))
		assert.NotZero(t, tr.LocalAddr().Port)

		require.NoError(t, tr.Close())
		select {
		case <-handler.closed:
		case <-time.After(2 * time.Second):
			t.Fatal("close not reported")
		}

		assert.NoError(t, tr.Close())
		err := tr.Send(&protocol.Message{Type: protocol.Ping}, protocol.Address{IP: "127.0.0.1", Port: 1})
		assert.True(t, mateerrors.Is(err, mateerrors.ErrClosed))
	})

	t.Run("ListenTwice", func(t *testing.T) {
		tr, _ := startTransport(t)
		err := tr.Listen("127.0.0.1:0")
		assert.True(t, mateerrors.Is(err, mateerrors.ErrTransport))
	})
}
