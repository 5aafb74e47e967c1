package mesh

import (
	"math/rand"
	"time"

	"github.com/ezmesh/meshcore/pkg/protocol"
)

const (
	// RebroadcastDelayMin/Max bound the random hold-off before relaying a
	// flood packet, desynchronizing the nodes that all heard it at once.
	// The delay avoids collisions only; it is not duplicate suppression.
	RebroadcastDelayMin = 50 * time.Millisecond
	RebroadcastDelayMax = 200 * time.Millisecond
)

// Router makes flood-routing relay decisions. It keeps no per-packet state:
// loop detection rides entirely on the path carried in each packet, which
// also means a packet can still be relayed redundantly by every node that
// independently qualifies (a known limitation of the upstream protocol).
type Router struct {
	duplicates   uint32
	rebroadcasts uint32
	rng          *rand.Rand
}

// NewRouter creates a router with its own delay source.
func NewRouter() *Router {
	return &Router{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ShouldRebroadcast decides whether we relay a packet: only FLOOD packets,
// only if our hash is not already in the path, and only if the path has room
// for one more hop.
func (r *Router) ShouldRebroadcast(p *protocol.Packet, myPathHash byte) bool {
	if p.Route != protocol.RouteFlood {
		return false
	}
	if p.IsInPath(myPathHash) {
		r.duplicates++
		return false
	}
	if len(p.Path) >= protocol.MaxPathLen {
		return false
	}
	r.rebroadcasts++
	return true
}

// PrepareRebroadcast clones the packet with our path hash appended. The
// received packet itself is never mutated.
func (r *Router) PrepareRebroadcast(p *protocol.Packet, myPathHash byte) (*protocol.Packet, error) {
	if len(p.Path) >= protocol.MaxPathLen {
		return nil, protocol.ErrPathTooLong
	}
	c := p.Clone()
	c.Path = append(c.Path, myPathHash)
	return c, nil
}

// Delay picks a uniform random hold-off in [RebroadcastDelayMin,
// RebroadcastDelayMax], inclusive.
func (r *Router) Delay() time.Duration {
	span := RebroadcastDelayMax - RebroadcastDelayMin
	return RebroadcastDelayMin + time.Duration(r.rng.Int63n(int64(span)+1))
}

// Duplicates counts packets ignored because we were already in the path.
func (r *Router) Duplicates() uint32 {
	return r.duplicates
}

// Rebroadcasts counts packets approved for relay.
func (r *Router) Rebroadcasts() uint32 {
	return r.rebroadcasts
}
