package mesh

import "github.com/ezmesh/meshcore/pkg/protocol"

// Bus topics published by the engine.
const (
	// TopicNodeDiscovered carries a types.Node value when a new peer is
	// first sighted or an ADVERT refreshes a known one.
	TopicNodeDiscovered = "mesh/node_discovered"

	// TopicGroupPacket carries a GroupPacketEvent for every decrypted
	// channel message, including our own outbound ones.
	TopicGroupPacket = "mesh/group_packet"

	// TopicPacket carries a PacketEvent for every parseable inbound frame,
	// for diagnostics.
	TopicPacket = "mesh/packet"
)

// GroupPacketEvent is a decrypted channel message ready for display.
type GroupPacketEvent struct {
	Channel    string
	Sender     string
	Body       string
	Timestamp  uint32 // sender clock, unix seconds
	SenderHash byte   // first path hash, 0 if the path was empty
	RSSI       float64
	SNR        float64
}

// PacketEvent is a raw inbound packet with its signal metadata.
type PacketEvent struct {
	Packet *protocol.Packet
	RSSI   float64
	SNR    float64
}
