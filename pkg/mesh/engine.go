// Package mesh ties the MeshCore protocol together: flood routing, the RX
// pipeline that turns radio frames into bus events, the deferred rebroadcast
// list, and the command surface the host drives.
//
// The engine is tick-driven: the host calls Update repeatedly from its main
// loop and every operation returns immediately. Nothing here blocks, and all
// engine state is touched only from the tick goroutine.
package mesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ezmesh/meshcore/internal/store"
	"github.com/ezmesh/meshcore/internal/telemetry"
	"github.com/ezmesh/meshcore/pkg/bus"
	"github.com/ezmesh/meshcore/pkg/channel"
	"github.com/ezmesh/meshcore/pkg/identity"
	"github.com/ezmesh/meshcore/pkg/protocol"
	"github.com/ezmesh/meshcore/pkg/radio"
	"github.com/ezmesh/meshcore/pkg/types"
)

// ErrNotJoined means a send was attempted on a channel we are not in.
var ErrNotJoined = errors.New("channel not joined")

// deliveryDedupWindow bounds how long a delivered channel message suppresses
// identical copies arriving over other relay paths.
const deliveryDedupWindow = 30 * time.Second

type pendingRebroadcast struct {
	due    time.Time
	packet *protocol.Packet
}

type deliveredMessage struct {
	channel byte
	sender  string
	body    string
	at      time.Time
}

// Engine is the top-level mesh orchestrator.
type Engine struct {
	cfg    Config
	log    *logrus.Logger
	id     *identity.Identity
	router *Router
	events *bus.Bus
	store  store.Store

	transport *radio.Transport
	txq       *radio.TxQueue

	channels  []*channel.Channel
	nodes     map[byte]*types.Node
	pending   []pendingRebroadcast
	delivered []deliveredMessage

	rxCount          uint32
	announceInterval time.Duration
	lastAnnounce     time.Time
	started          bool
}

// New builds an engine over a radio driver and a persistence store. The
// identity is loaded from the store or freshly generated; previously joined
// channels are restored, the public channel is always joined, and any
// configured channels are joined on top.
func New(cfg Config, driver radio.Driver, st store.Store, log *logrus.Logger) (*Engine, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if st == nil {
		st = store.NewLocal()
	}
	if cfg.TxThrottle == 0 {
		cfg.TxThrottle = radio.DefaultThrottle
	}

	id, err := loadOrCreateIdentity(st, cfg.NodeName)
	if err != nil {
		return nil, err
	}

	transport := radio.NewTransport(driver, log)
	txq := radio.NewTxQueue(transport, cfg.QueueCapacity, log)
	txq.SetThrottle(cfg.TxThrottle)

	e := &Engine{
		cfg:              cfg,
		log:              log,
		id:               id,
		router:           NewRouter(),
		events:           bus.New(),
		store:            st,
		transport:        transport,
		txq:              txq,
		nodes:            make(map[byte]*types.Node),
		announceInterval: cfg.AnnounceInterval,
	}

	e.loadChannels()
	e.ensureJoined(channel.PublicName, "")
	for _, cc := range cfg.Channels {
		e.ensureJoined(cc.Name, cc.Password)
	}

	log.WithFields(logrus.Fields{
		"node_id":   id.FullID(),
		"name":      id.Name(),
		"path_hash": fmt.Sprintf("%02X", id.PathHash()),
		"channels":  len(e.channels),
	}).Info("Mesh engine ready")
	return e, nil
}

// Start brings the radio up and announces our presence. A radio failure is
// fatal for mesh operation and must be surfaced to the user, not retried
// silently.
func (e *Engine) Start() error {
	if err := e.transport.Start(e.cfg.Radio); err != nil {
		return err
	}
	e.started = true
	e.lastAnnounce = time.Now()
	if err := e.SendAnnounce(); err != nil {
		e.log.WithError(err).Warn("Initial announce failed")
	}
	return nil
}

// Update advances the engine by one tick: drain received frames, pump the
// TX queue, release due rebroadcasts, announce if the interval elapsed, and
// deliver queued bus events. A rebroadcast scheduled this tick can therefore
// never transmit before the next tick boundary.
func (e *Engine) Update(now time.Time) {
	if !e.started {
		return
	}

	e.drainRadio()
	e.txq.Process(now)
	e.processRebroadcasts(now)

	if e.announceInterval > 0 && now.Sub(e.lastAnnounce) >= e.announceInterval {
		e.lastAnnounce = now
		if err := e.SendAnnounce(); err != nil {
			e.log.WithError(err).Warn("Periodic announce failed")
		}
	}

	e.events.Dispatch()
}

// Bus exposes the event bus for subscribers.
func (e *Engine) Bus() *bus.Bus {
	return e.events
}

// Identity returns this node's identity.
func (e *Engine) Identity() *identity.Identity {
	return e.id
}

// TxCount reports frames handed to the radio.
func (e *Engine) TxCount() uint32 {
	return e.txq.Sent()
}

// RxCount reports frames drained from the radio.
func (e *Engine) RxCount() uint32 {
	return e.rxCount
}

// Router exposes relay statistics.
func (e *Engine) Router() *Router {
	return e.router
}

// SetTxThrottle adjusts transmission pacing at runtime.
func (e *Engine) SetTxThrottle(d time.Duration) {
	e.txq.SetThrottle(d)
}

// SetAnnounceInterval adjusts the periodic ADVERT cadence. Zero disables it.
func (e *Engine) SetAnnounceInterval(d time.Duration) {
	e.announceInterval = d
}

// Nodes returns a snapshot of the known peers, ordered by path hash. The
// table is never evicted automatically; callers apply their own policy.
func (e *Engine) Nodes() []types.Node {
	out := make([]types.Node, 0, len(e.nodes))
	for _, n := range e.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PathHash < out[j].PathHash })
	return out
}

// Channels returns a snapshot of the channel table.
func (e *Engine) Channels() []channel.Channel {
	out := make([]channel.Channel, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, *ch)
	}
	return out
}

// QueueSend queues a raw pre-built frame for throttled transmission.
func (e *Engine) QueueSend(frame []byte) error {
	return e.txq.Enqueue(frame)
}

// SendAnnounce queues an ADVERT flood carrying our public key and name.
func (e *Engine) SendAnnounce() error {
	pkt := &protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadAdvert,
		Payload: encodeAdvert(uint32(time.Now().Unix()), e.id.PublicKey(), e.id.Name()),
	}
	return e.sendPacket(pkt)
}

// SendChannelMessage encrypts and queues a text message for a joined
// channel, and loops it back on the bus so the host UI can show it.
func (e *Engine) SendChannelMessage(name, body string) error {
	ch := e.channelByName(channel.Normalize(name))
	if ch == nil || !ch.Joined {
		return fmt.Errorf("%w: %s", ErrNotJoined, channel.Normalize(name))
	}

	timestamp := uint32(time.Now().Unix())
	plaintext := channel.EncodeGroupMessage(timestamp, e.id.Name(), body)
	payload, err := channel.Seal(ch, plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal channel message: %w", err)
	}

	pkt := &protocol.Packet{
		Route:   protocol.RouteFlood,
		Type:    protocol.PayloadGrpTxt,
		Payload: payload,
	}
	if err := e.sendPacket(pkt); err != nil {
		return err
	}

	ch.LastActivity = time.Now()
	e.events.Publish(TopicGroupPacket, GroupPacketEvent{
		Channel:    ch.Name,
		Sender:     e.id.Name(),
		Body:       body,
		Timestamp:  timestamp,
		SenderHash: e.id.PathHash(),
	})
	return nil
}

// JoinChannel joins (or rejoins) a channel, deriving its key from the
// password or the name. Non-public membership is persisted.
func (e *Engine) JoinChannel(name, password string) error {
	if name == "" {
		return errors.New("empty channel name")
	}

	normalized := channel.Normalize(name)
	if ch := e.channelByName(normalized); ch != nil {
		changed := false
		if password != "" {
			// A join with a password wins over whatever key we stored; the
			// caller expects the password to be in effect.
			fresh := channel.New(normalized, password)
			if fresh.Hash != ch.Hash {
				ch.Key = fresh.Key
				ch.Hash = fresh.Hash
				ch.Protected = fresh.Protected
				changed = true
				e.log.WithFields(logrus.Fields{
					"channel": ch.Name,
					"hash":    fmt.Sprintf("%02X", ch.Hash),
				}).Info("Rekeyed channel with new password")
			}
		}
		if !ch.Joined {
			ch.Joined = true
			changed = true
			e.log.WithField("channel", ch.Name).Info("Rejoined channel")
		}
		if changed && ch.Name != channel.PublicName {
			e.saveChannels()
		}
		return nil
	}

	ch := channel.New(normalized, password)
	e.channels = append(e.channels, ch)
	e.log.WithFields(logrus.Fields{
		"channel": ch.Name,
		"hash":    fmt.Sprintf("%02X", ch.Hash),
	}).Info("Joined channel")

	if ch.Name != channel.PublicName {
		e.saveChannels()
	}
	return nil
}

// LeaveChannel drops membership. Pending rebroadcasts for the channel are
// discarded; dropping scheduled work wholesale is always safe.
func (e *Engine) LeaveChannel(name string) error {
	ch := e.channelByName(channel.Normalize(name))
	if ch == nil || !ch.Joined {
		return fmt.Errorf("%w: %s", ErrNotJoined, channel.Normalize(name))
	}
	ch.Joined = false
	e.dropPendingForChannel(ch.Hash)
	e.saveChannels()
	e.log.WithField("channel", ch.Name).Info("Left channel")
	return nil
}

// sendPacket appends our own path hash, serializes and queues the frame.
func (e *Engine) sendPacket(pkt *protocol.Packet) error {
	out := pkt.Clone()
	out.Path = append(out.Path, e.id.PathHash())

	frame, err := out.Serialize()
	if err != nil {
		return err
	}
	return e.txq.Enqueue(frame)
}

func (e *Engine) drainRadio() {
	for e.transport.Available() {
		frame, meta, err := e.transport.Receive(protocol.MaxFrameSize)
		if err != nil {
			return
		}
		e.rxCount++
		telemetry.PacketsReceived.Inc()
		e.handleFrame(frame, meta)
	}
}

// handleFrame is the RX pipeline. All errors on this path are swallowed:
// radio bytes are attacker-controlled and must never propagate a failure
// into the rest of the system.
func (e *Engine) handleFrame(frame []byte, meta radio.RxMetadata) {
	pkt, err := protocol.ParsePacket(frame)
	if err != nil {
		telemetry.ParseFailures.Inc()
		e.log.WithError(err).Debug("Discarded malformed frame")
		return
	}

	e.events.Publish(TopicPacket, PacketEvent{Packet: pkt, RSSI: meta.RSSI, SNR: meta.SNR})

	// Our own hash in the path means we originated or already relayed this
	// packet; it carries nothing new.
	if !pkt.IsInPath(e.id.PathHash()) {
		switch pkt.Type {
		case protocol.PayloadAdvert:
			e.handleAdvert(pkt, meta)
		case protocol.PayloadGrpTxt:
			e.handleGroupText(pkt, meta)
		default:
			// TXT_MSG and RESPONSE wire layouts are undocumented upstream;
			// they are republished raw on mesh/packet and flood-routed only.
			e.noteSighting(pkt, meta)
		}
	}

	if pkt.Route == protocol.RouteFlood {
		e.scheduleRebroadcast(pkt, meta.ReceivedAt)
	}
}

func (e *Engine) handleAdvert(pkt *protocol.Packet, meta radio.RxMetadata) {
	adv, err := parseAdvert(pkt.Payload)
	if err != nil {
		e.log.WithError(err).Debug("Discarded malformed advert")
		return
	}

	hash := adv.PublicKey[0]
	node, _ := e.upsertNode(hash, adv.Name)
	node.PublicKey = adv.PublicKey
	node.Name = adv.Name
	node.RSSI = meta.RSSI
	node.SNR = meta.SNR
	node.LastSeen = meta.ReceivedAt
	node.HopCount = uint8(len(pkt.Path))

	e.log.WithFields(logrus.Fields{
		"node": adv.Name,
		"hash": fmt.Sprintf("%02X", hash),
		"hops": len(pkt.Path),
	}).Debug("Advert received")

	// Adverts always refresh the discovery topic, even for known nodes.
	e.events.Publish(TopicNodeDiscovered, *node)
}

func (e *Engine) handleGroupText(pkt *protocol.Packet, meta radio.RxMetadata) {
	if len(pkt.Payload) < 1 {
		e.log.Debug("Discarded empty group packet")
		return
	}

	ch := e.channelByHash(pkt.Payload[0])
	if ch == nil {
		// Not joined: we cannot decrypt it and spend nothing tracking it.
		e.log.WithField("hash", fmt.Sprintf("%02X", pkt.Payload[0])).Debug("Group packet for unknown channel")
		return
	}

	plaintext, err := channel.Open(ch, pkt.Payload)
	if err != nil {
		if errors.Is(err, channel.ErrAuthenticationFailed) {
			telemetry.MACFailures.Inc()
			e.log.WithField("channel", ch.Name).Warn("Group message failed authentication")
		} else {
			e.log.WithError(err).Debug("Discarded undecryptable group packet")
		}
		return
	}

	msg, err := channel.DecodeGroupMessage(plaintext)
	if err != nil {
		// The firmware tolerates payloads without the "sender: " prefix and
		// shows the whole content as the message body.
		if len(plaintext) < 6 {
			e.log.WithError(err).Debug("Discarded malformed group message")
			return
		}
		msg = channel.GroupMessage{
			Timestamp: binary.LittleEndian.Uint32(plaintext[:4]),
			Body:      string(bytes.TrimRight(plaintext[5:], "\x00")),
		}
	}

	var senderHash byte
	if len(pkt.Path) > 0 {
		senderHash = pkt.Path[0]
	}

	e.noteSighting(pkt, meta)
	ch.LastActivity = meta.ReceivedAt

	// A message flooding in over several relay paths decrypts identically
	// each time; only the first copy inside the window reaches subscribers.
	if e.isDuplicateDelivery(ch.Hash, msg.Sender, msg.Body, meta.ReceivedAt) {
		e.log.WithField("channel", ch.Name).Debug("Suppressed duplicate message delivery")
		return
	}

	e.events.Publish(TopicGroupPacket, GroupPacketEvent{
		Channel:    ch.Name,
		Sender:     msg.Sender,
		Body:       msg.Body,
		Timestamp:  msg.Timestamp,
		SenderHash: senderHash,
		RSSI:       meta.RSSI,
		SNR:        meta.SNR,
	})
}

// isDuplicateDelivery records a decoded message and reports whether the same
// channel, sender and body was already delivered inside the dedup window.
// Expired entries are pruned on every call, so the list stays bounded by the
// channel traffic of the last 30 seconds.
func (e *Engine) isDuplicateDelivery(hash byte, sender, body string, now time.Time) bool {
	kept := e.delivered[:0]
	for _, m := range e.delivered {
		if now.Sub(m.at) > deliveryDedupWindow {
			continue
		}
		kept = append(kept, m)
	}
	e.delivered = kept

	for _, m := range e.delivered {
		if m.channel == hash && m.sender == sender && m.body == body {
			return true
		}
	}
	e.delivered = append(e.delivered, deliveredMessage{
		channel: hash,
		sender:  sender,
		body:    body,
		at:      now,
	})
	return false
}

// noteSighting refreshes the node table from any packet whose path names an
// originator, without an ADVERT's key or name.
func (e *Engine) noteSighting(pkt *protocol.Packet, meta radio.RxMetadata) {
	if len(pkt.Path) == 0 {
		return
	}
	node, created := e.upsertNode(pkt.Path[0], "")
	node.RSSI = meta.RSSI
	node.SNR = meta.SNR
	node.LastSeen = meta.ReceivedAt
	node.HopCount = uint8(len(pkt.Path))
	if created {
		e.events.Publish(TopicNodeDiscovered, *node)
	}
}

func (e *Engine) upsertNode(hash byte, name string) (*types.Node, bool) {
	if node, ok := e.nodes[hash]; ok {
		if name != "" {
			node.Name = name
		}
		return node, false
	}
	node := types.NewNode(hash, name)
	e.nodes[hash] = node
	return node, true
}

func (e *Engine) scheduleRebroadcast(pkt *protocol.Packet, now time.Time) {
	if !e.router.ShouldRebroadcast(pkt, e.id.PathHash()) {
		if pkt.IsInPath(e.id.PathHash()) {
			telemetry.DuplicatesSuppressed.Inc()
		}
		return
	}

	relay, err := e.router.PrepareRebroadcast(pkt, e.id.PathHash())
	if err != nil {
		return
	}

	telemetry.Rebroadcasts.Inc()
	e.pending = append(e.pending, pendingRebroadcast{
		due:    now.Add(e.router.Delay()),
		packet: relay,
	})
}

func (e *Engine) processRebroadcasts(now time.Time) {
	kept := e.pending[:0]
	for _, p := range e.pending {
		if now.Before(p.due) {
			kept = append(kept, p)
			continue
		}
		frame, err := p.packet.Serialize()
		if err != nil {
			continue
		}
		if err := e.txq.Enqueue(frame); err != nil {
			e.log.WithError(err).Warn("Dropped rebroadcast, queue full")
		}
	}
	e.pending = kept
}

func (e *Engine) dropPendingForChannel(hash byte) {
	kept := e.pending[:0]
	for _, p := range e.pending {
		if p.packet.Type == protocol.PayloadGrpTxt &&
			len(p.packet.Payload) > 0 && p.packet.Payload[0] == hash {
			continue
		}
		kept = append(kept, p)
	}
	e.pending = kept
}

func (e *Engine) ensureJoined(name, password string) {
	if err := e.JoinChannel(name, password); err != nil {
		e.log.WithError(err).WithField("channel", name).Warn("Failed to join channel")
	}
}

func (e *Engine) channelByName(name string) *channel.Channel {
	for _, ch := range e.channels {
		if ch.Name == name {
			return ch
		}
	}
	return nil
}

// channelByHash finds a joined channel by its wire tag. Hash collisions
// resolve to the first match; the protocol accepts this.
func (e *Engine) channelByHash(hash byte) *channel.Channel {
	for _, ch := range e.channels {
		if ch.Joined && ch.Hash == hash {
			return ch
		}
	}
	return nil
}
