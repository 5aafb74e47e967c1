package mesh

import (
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezmesh/meshcore/internal/store"
	"github.com/ezmesh/meshcore/pkg/channel"
	"github.com/ezmesh/meshcore/pkg/protocol"
	"github.com/ezmesh/meshcore/pkg/radio"
	"github.com/ezmesh/meshcore/pkg/types"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T, medium *radio.Medium, name string, channels ...ChannelConfig) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.NodeName = name
	cfg.AnnounceInterval = 0 // no periodic adverts; tests announce explicitly
	cfg.Channels = channels

	e, err := New(cfg, medium.Attach(), store.NewLocal(), testLogger())
	require.NoError(t, err)
	require.NoError(t, e.Start())
	return e
}

func collectGroupPackets(e *Engine) *[]GroupPacketEvent {
	events := &[]GroupPacketEvent{}
	e.Bus().Subscribe(TopicGroupPacket, func(_ string, payload any) {
		*events = append(*events, payload.(GroupPacketEvent))
	})
	return events
}

func TestChannelMessageDelivery(t *testing.T) {
	medium := radio.NewMedium()
	a := newTestEngine(t, medium, "alice", ChannelConfig{Name: "test"})
	b := newTestEngine(t, medium, "bob", ChannelConfig{Name: "test"})

	sent := collectGroupPackets(a)
	received := collectGroupPackets(b)

	now := time.Now()
	a.Update(now) // transmits the boot announce
	b.Update(now)

	require.NoError(t, a.SendChannelMessage("#test", "hello mesh"))

	now = now.Add(radio.DefaultThrottle)
	a.Update(now)
	b.Update(now)

	require.Len(t, *received, 1)
	got := (*received)[0]
	assert.Equal(t, "#test", got.Channel)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "hello mesh", got.Body)
	assert.Equal(t, a.Identity().PathHash(), got.SenderHash)
	assert.NotZero(t, got.Timestamp)

	// The sender's own bus sees the message too.
	require.Len(t, *sent, 1)
	assert.Equal(t, "hello mesh", (*sent)[0].Body)
}

func TestRawGroupPacketDecode(t *testing.T) {
	medium := radio.NewMedium()
	b := newTestEngine(t, medium, "bob", ChannelConfig{Name: "test"})
	received := collectGroupPackets(b)

	// Hand-built frame with an empty path, injected straight onto the medium.
	ch := channel.New("test", "")
	payload, err := channel.Seal(ch, channel.EncodeGroupMessage(100, "alice", "hello"))
	require.NoError(t, err)
	frame, err := (&protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Payload: payload,
	}).Serialize()
	require.NoError(t, err)

	injector := medium.Attach()
	require.NoError(t, injector.StartTransmit(frame))

	b.Update(time.Now())

	require.Len(t, *received, 1)
	got := (*received)[0]
	assert.Equal(t, "#test", got.Channel)
	assert.Equal(t, "alice", got.Sender)
	assert.Equal(t, "hello", got.Body)
	assert.Equal(t, uint32(100), got.Timestamp)
	assert.Equal(t, byte(0), got.SenderHash) // empty path
}

func TestDuplicateDeliverySuppressed(t *testing.T) {
	medium := radio.NewMedium()
	b := newTestEngine(t, medium, "bob", ChannelConfig{Name: "test"})
	received := collectGroupPackets(b)

	// Two relay hashes distinct from the receiver's own.
	h1, h2 := byte(0xAA), byte(0xCC)
	if b.Identity().PathHash() == h1 {
		h1 = 0xAB
	}
	if b.Identity().PathHash() == h2 {
		h2 = 0xCD
	}

	ch := channel.New("test", "")
	payload, err := channel.Seal(ch, channel.EncodeGroupMessage(100, "alice", "hello"))
	require.NoError(t, err)

	// The same sealed message arriving directly and again via a relay.
	direct, err := (&protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Path:    []byte{h1},
		Payload: payload,
	}).Serialize()
	require.NoError(t, err)
	relayed, err := (&protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Path:    []byte{h1, h2},
		Payload: payload,
	}).Serialize()
	require.NoError(t, err)

	injector := medium.Attach()
	require.NoError(t, injector.StartTransmit(direct))
	require.NoError(t, injector.StartTransmit(relayed))

	b.Update(time.Now())

	require.Len(t, *received, 1)
	assert.Equal(t, "hello", (*received)[0].Body)
	assert.Equal(t, uint32(2), b.RxCount())

	// A different message on the same channel is not suppressed.
	fresh, err := channel.Seal(ch, channel.EncodeGroupMessage(101, "alice", "again"))
	require.NoError(t, err)
	frame, err := (&protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Path:    []byte{h1},
		Payload: fresh,
	}).Serialize()
	require.NoError(t, err)
	require.NoError(t, injector.StartTransmit(frame))

	b.Update(time.Now())
	require.Len(t, *received, 2)
	assert.Equal(t, "again", (*received)[1].Body)
}

func TestUnnamedSenderFallback(t *testing.T) {
	medium := radio.NewMedium()
	b := newTestEngine(t, medium, "bob", ChannelConfig{Name: "test"})
	received := collectGroupPackets(b)

	// Plaintext without the "sender: " prefix, as some senders emit.
	plaintext := binary.LittleEndian.AppendUint32(nil, 42)
	plaintext = append(plaintext, 0) // flags
	plaintext = append(plaintext, "raw text"...)
	plaintext = append(plaintext, 0)

	ch := channel.New("test", "")
	payload, err := channel.Seal(ch, plaintext)
	require.NoError(t, err)
	frame, err := (&protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Payload: payload,
	}).Serialize()
	require.NoError(t, err)
	require.NoError(t, medium.Attach().StartTransmit(frame))

	b.Update(time.Now())

	require.Len(t, *received, 1)
	got := (*received)[0]
	assert.Equal(t, "", got.Sender)
	assert.Equal(t, "raw text", got.Body)
	assert.Equal(t, uint32(42), got.Timestamp)
}

func TestUnjoinedChannelStaysSilent(t *testing.T) {
	medium := radio.NewMedium()
	a := newTestEngine(t, medium, "alice", ChannelConfig{Name: "test"})
	c := newTestEngine(t, medium, "carol") // public channel only

	groups := collectGroupPackets(c)
	var packets int
	c.Bus().Subscribe(TopicPacket, func(_ string, _ any) { packets++ })

	now := time.Now()
	a.Update(now)
	c.Update(now)

	require.NoError(t, a.SendChannelMessage("#test", "secret"))

	now = now.Add(radio.DefaultThrottle)
	a.Update(now)
	c.Update(now)

	// The frame is visible on the diagnostic topic but never decrypted.
	assert.Empty(t, *groups)
	assert.Greater(t, packets, 0)
	assert.NotZero(t, c.RxCount())
}

func TestAnnounceDiscovery(t *testing.T) {
	medium := radio.NewMedium()
	a := newTestEngine(t, medium, "alice")
	b := newTestEngine(t, medium, "bob")

	var discovered []types.Node
	b.Bus().Subscribe(TopicNodeDiscovered, func(_ string, payload any) {
		discovered = append(discovered, payload.(types.Node))
	})

	now := time.Now()
	a.Update(now) // boot announce goes out
	b.Update(now)

	require.Len(t, discovered, 1)
	assert.Equal(t, "alice", discovered[0].Name)
	assert.True(t, discovered[0].HasPublicKey())
	assert.Equal(t, a.Identity().PathHash(), discovered[0].PathHash)
	assert.Equal(t, uint8(1), discovered[0].HopCount)

	nodes := b.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, "alice", nodes[0].Name)
}

func TestFloodRebroadcast(t *testing.T) {
	medium := radio.NewMedium()
	a := newTestEngine(t, medium, "alice")
	b := newTestEngine(t, medium, "bob")

	now := time.Now()
	a.Update(now) // a's announce reaches b
	b.Update(now) // b schedules a relay with a random 50-200ms hold-off

	// Well past the maximum hold-off: the relay is queued this tick and
	// transmitted on the next one.
	now = now.Add(2 * time.Second)
	b.Update(now)
	now = now.Add(radio.DefaultThrottle)
	b.Update(now)

	assert.Equal(t, uint32(1), b.Router().Rebroadcasts())
	assert.Equal(t, uint32(2), b.TxCount()) // own announce plus the relay

	// The relayed copy carries a's hash, so a drops it as its own echo.
	a.Update(now)
	assert.Equal(t, uint32(1), a.Router().Duplicates())
	assert.Equal(t, uint32(1), a.TxCount())
}

func TestLeaveChannelStopsDelivery(t *testing.T) {
	medium := radio.NewMedium()
	a := newTestEngine(t, medium, "alice", ChannelConfig{Name: "test"})
	b := newTestEngine(t, medium, "bob", ChannelConfig{Name: "test"})

	received := collectGroupPackets(b)

	now := time.Now()
	a.Update(now)
	b.Update(now)

	require.NoError(t, a.SendChannelMessage("#test", "first"))
	now = now.Add(radio.DefaultThrottle)
	a.Update(now)
	b.Update(now)
	require.Len(t, *received, 1)

	require.NoError(t, b.LeaveChannel("#test"))
	assert.ErrorIs(t, b.LeaveChannel("#test"), ErrNotJoined)
	assert.ErrorIs(t, b.SendChannelMessage("#test", "x"), ErrNotJoined)

	require.NoError(t, a.SendChannelMessage("#test", "second"))
	now = now.Add(radio.DefaultThrottle)
	a.Update(now)
	b.Update(now)
	assert.Len(t, *received, 1)
}

func TestJoinChannelNormalizesNames(t *testing.T) {
	medium := radio.NewMedium()
	e := newTestEngine(t, medium, "alice")

	require.NoError(t, e.JoinChannel("lounge", ""))
	require.NoError(t, e.JoinChannel("#lounge", "")) // same channel, idempotent

	var count int
	for _, ch := range e.Channels() {
		if ch.Name == "#lounge" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRejoinWithNewPassword(t *testing.T) {
	e := newTestEngine(t, radio.NewMedium(), "alice")

	require.NoError(t, e.JoinChannel("vault", "first"))
	before := findChannel(e.Channels(), "#vault")
	require.NotNil(t, before)
	assert.True(t, before.Protected)

	require.NoError(t, e.LeaveChannel("vault"))
	require.NoError(t, e.JoinChannel("vault", "second"))

	after := findChannel(e.Channels(), "#vault")
	require.NotNil(t, after)
	assert.True(t, after.Joined)
	assert.NotEqual(t, before.Key, after.Key)
	assert.NotEqual(t, before.Hash, after.Hash)
}

func TestSendOnUnknownChannel(t *testing.T) {
	e := newTestEngine(t, radio.NewMedium(), "alice")
	assert.ErrorIs(t, e.SendChannelMessage("#nowhere", "hi"), ErrNotJoined)
}

func TestEngineStartFailure(t *testing.T) {
	driver := radio.NewMedium().Attach()
	driver.FailInit = true

	e, err := New(DefaultConfig(), driver, store.NewLocal(), testLogger())
	require.NoError(t, err)
	assert.ErrorIs(t, e.Start(), radio.ErrInitFailed)
}
