package protocol

import "fmt"

// Header byte layout:
//
//	bits 0-1  route type
//	bits 2-5  path length (0-15)
//	bits 6-7  payload type
//
// The frame format carries no version bits; Version is fixed at 0 for this
// revision of the wire format.
const Version = 0

const (
	routeMask   = 0x03
	pathLenMask = 0x0F
	pathShift   = 2
	typeShift   = 6
	typeMask    = 0x03
)

// MakeHeader packs the route and payload type into a header byte with a zero
// path length. Serialize fills the path-length bits once the path is known.
func MakeHeader(route RouteType, pt PayloadType) (byte, error) {
	if route > RouteResponse {
		return 0, fmt.Errorf("%w: route type %d", ErrInvalidHeader, route)
	}
	if pt > PayloadResponse {
		return 0, fmt.Errorf("%w: payload type %d", ErrInvalidHeader, pt)
	}
	return byte(route) | byte(pt)<<typeShift, nil
}

// ParseHeader unpacks a header byte into route type, payload type and path
// length. It fails with ErrInvalidHeader when the route type value is outside
// the defined range.
func ParseHeader(h byte) (RouteType, PayloadType, int, error) {
	route := RouteType(h & routeMask)
	if route > RouteResponse {
		return 0, 0, 0, fmt.Errorf("%w: route type %d", ErrInvalidHeader, route)
	}
	pt := PayloadType(h >> typeShift & typeMask)
	pathLen := int(h >> pathShift & pathLenMask)
	return route, pt, pathLen, nil
}

// Serialize encodes the packet as [header][path bytes][payload].
func (p *Packet) Serialize() ([]byte, error) {
	if len(p.Path) > MaxPathLen {
		return nil, fmt.Errorf("%w: %d hashes", ErrPathTooLong, len(p.Path))
	}
	header, err := MakeHeader(p.Route, p.Type)
	if err != nil {
		return nil, err
	}
	header |= byte(len(p.Path)) << pathShift

	total := 1 + len(p.Path) + len(p.Payload)
	if total > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, total)
	}

	buf := make([]byte, 0, total)
	buf = append(buf, header)
	buf = append(buf, p.Path...)
	buf = append(buf, p.Payload...)
	return buf, nil
}

// ParsePacket decodes a received frame. This is the only trust boundary for
// attacker-controlled radio bytes: it must reject malformed input with an
// error, never panic.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty frame", ErrTooShort)
	}
	route, pt, pathLen, err := ParseHeader(data[0])
	if err != nil {
		return nil, err
	}
	if len(data) < 1+pathLen {
		return nil, fmt.Errorf("%w: %d bytes, path claims %d", ErrTooShort, len(data), pathLen)
	}

	p := &Packet{Route: route, Type: pt}
	if pathLen > 0 {
		p.Path = append([]byte(nil), data[1:1+pathLen]...)
	}
	if rest := data[1+pathLen:]; len(rest) > 0 {
		p.Payload = append([]byte(nil), rest...)
	}
	return p, nil
}
