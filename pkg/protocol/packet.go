// Package protocol implements the MeshCore over-the-air packet format:
// a single header byte carrying route type, path length and payload type,
// followed by the path hashes and the raw payload.
package protocol

// RouteType selects how a packet moves through the mesh (header bits 0-1).
type RouteType uint8

const (
	RouteFlood RouteType = iota // rebroadcast by every node not yet in the path
	RouteDirect
	RouteResponse
)

// PayloadType tags the payload interpretation (header bits 6-7).
type PayloadType uint8

const (
	PayloadAdvert PayloadType = iota // node announcement
	PayloadTxtMsg                    // direct text message
	PayloadGrpTxt                    // encrypted channel text message
	PayloadResponse
)

const (
	// MaxPathLen is the largest path the 4-bit header field can describe.
	MaxPathLen = 15

	// MaxFrameSize is the radio's hard payload limit per transmission.
	MaxFrameSize = 255
)

// Packet is a single over-the-air frame. Packets are immutable once built;
// a rebroadcast works on a clone, never the original.
type Packet struct {
	Route   RouteType
	Type    PayloadType
	Path    []byte // ordered path hashes, first entry is the originator
	Payload []byte
}

// IsInPath reports whether the given path hash already appears in the path.
func (p *Packet) IsInPath(hash byte) bool {
	for _, h := range p.Path {
		if h == hash {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the packet.
func (p *Packet) Clone() *Packet {
	c := &Packet{
		Route: p.Route,
		Type:  p.Type,
	}
	if len(p.Path) > 0 {
		c.Path = append([]byte(nil), p.Path...)
	}
	if len(p.Payload) > 0 {
		c.Payload = append([]byte(nil), p.Payload...)
	}
	return c
}

func (t RouteType) String() string {
	switch t {
	case RouteFlood:
		return "FLOOD"
	case RouteDirect:
		return "DIRECT"
	case RouteResponse:
		return "RESPONSE"
	}
	return "UNKNOWN"
}

func (t PayloadType) String() string {
	switch t {
	case PayloadAdvert:
		return "ADVERT"
	case PayloadTxtMsg:
		return "TXT_MSG"
	case PayloadGrpTxt:
		return "GRP_TXT"
	case PayloadResponse:
		return "RESPONSE"
	}
	return "UNKNOWN"
}
