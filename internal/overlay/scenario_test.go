package overlay

import (
	"context"
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
	from    ContactInfo
	payload []byte
}

// startUDPNode runs a node on an ephemeral loopback port
func startUDPNode(t *testing.T, config Config) (*Node, <-chan received) {
	t.Helper()

	inbox := make(chan received, 16)
	n, err := NewNode(zaptest.NewLogger(t), config, WithEvents(Events{
		OnMessage: func(from ContactInfo, payload []byte) {
			inbox <- received{from: from, payload: payload}
		},
	}))
	require.NoError(t, err)
	require.NoError(t, n.Start())
	t.Cleanup(func() { n.Close() })

	require.NotZero(t, n.Addr().Port)
	return n, inbox
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestDirectConnectScenario tests two nodes admitting each other
func TestDirectConnectScenario(t *testing.T) {
	a, _ := startUDPNode(t, testConfig())
	b, _ := startUDPNode(t, testConfig())

	id, err := a.DirectConnect(testContext(t), b.Addr())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), id)

	info, ok := lookupContact(a, b.ID())
	require.True(t, ok)
	assert.Equal(t, protocol.StateDirect, info.State)
	assert.Equal(t, b.Addr().Port, info.Address.Port)

	require.Eventually(t, func() bool {
		info, ok := lookupContact(b, a.ID())
		return ok && info.State == protocol.StateDirect
	}, time.Second, 10*time.Millisecond)

	contacts, err := a.Contacts(testContext(t))
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, b.ID(), contacts[0].ID)
}

// TestSendScenario tests delivery of an application payload
func TestSendScenario(t *testing.T) {
	a, _ := startUDPNode(t, testConfig())
	b, inbox := startUDPNode(t, testConfig())

	_, err := a.DirectConnect(testContext(t), b.Addr())
	require.NoError(t, err)

	require.NoError(t, a.Send(testContext(t), b.ID(), []byte("I'm here!")))

	select {
	case msg := <-inbox:
		assert.Equal(t, a.ID(), msg.from.ID)
		assert.Equal(t, []byte("I'm here!"), msg.payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

// TestDirectConnectTimeout tests a handshake with a silent address
func TestDirectConnectTimeout(t *testing.T) {
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer silent.Close()

	config := testConfig()
	config.ConnectTimeout = 200 * time.Millisecond
	a, _ := startUDPNode(t, config)

	start := time.Now()
	_, err = a.DirectConnect(testContext(t), protocol.AddressFromUDP(silent.LocalAddr().(*net.UDPAddr)))
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, mateerrors.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, config.ConnectTimeout)
	assertIdle(t, a)
}

// TestStaleContactEvicted tests liveness eviction of a silent contact
func TestStaleContactEvicted(t *testing.T) {
	config := testConfig()
	config.PingInterval = 100 * time.Millisecond

	a, _ := startUDPNode(t, config)
	b, _ := startUDPNode(t, config)

	_, err := a.DirectConnect(testContext(t), b.Addr())
	require.NoError(t, err)

	// Both sides ping, so the contact survives several check periods
	time.Sleep(5 * config.PingInterval)
	_, ok := lookupContact(a, b.ID())
	require.True(t, ok)

	require.NoError(t, b.Close())

	require.Eventually(t, func() bool {
		_, ok := lookupContact(a, b.ID())
		return !ok
	}, 3*time.Second, 20*time.Millisecond)

	_, err = a.Lookup(testContext(t), b.ID())
	assert.ErrorIs(t, err, mateerrors.ErrUnreachable)
}

// TestRelayScenario tests sending to a node known only to an intermediary
func TestRelayScenario(t *testing.T) {
	a, _ := startUDPNode(t, testConfig())
	r, _ := startUDPNode(t, testConfig())
	target, inbox := startUDPNode(t, testConfig())

	_, err := a.DirectConnect(testContext(t), r.Addr())
	require.NoError(t, err)
	_, err = target.DirectConnect(testContext(t), r.Addr())
	require.NoError(t, err)

	_, known := lookupContact(a, target.ID())
	require.False(t, known)

	res, err := a.Lookup(testContext(t), target.ID())
	require.NoError(t, err)
	assert.Equal(t, target.ID(), res.Contact.ID)
	require.NotNil(t, res.Relay)
	assert.Equal(t, r.ID(), res.Relay.ID)

	require.NoError(t, a.Send(testContext(t), target.ID(), []byte("via relay")))

	select {
	case msg := <-inbox:
		assert.Equal(t, a.ID(), msg.from.ID)
		assert.Equal(t, []byte("via relay"), msg.payload)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	_, known = lookupContact(a, target.ID())
	assert.True(t, known)

	// The opportunistic direct handshake replaces the relay path on loopback
	require.Eventually(t, func() bool {
		info, ok := lookupContact(a, target.ID())
		return ok && info.State == protocol.StateDirect && info.RelayAddress == nil
	}, 2*time.Second, 10*time.Millisecond)
}
