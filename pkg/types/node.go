// Package types holds the shared mesh data records.
package types

import (
	"crypto/ed25519"
	"fmt"
	"time"
)

// Node is a remote peer record, keyed by its 1-byte path hash. Records are
// created on the first ADVERT or flood packet seen from an unknown hash and
// updated on every later sighting; nothing evicts them.
type Node struct {
	PathHash  byte
	Name      string
	PublicKey ed25519.PublicKey // nil until an ADVERT delivers it
	RSSI      float64
	SNR       float64
	LastSeen  time.Time
	HopCount  uint8
}

// NewNode creates a record for a newly sighted path hash. Nodes without a
// name yet are labeled by their hash.
func NewNode(pathHash byte, name string) *Node {
	if name == "" {
		name = fmt.Sprintf("%02X", pathHash)
	}
	return &Node{
		PathHash: pathHash,
		Name:     name,
	}
}

// HasPublicKey reports whether an ADVERT has delivered the node's key.
func (n *Node) HasPublicKey() bool {
	return len(n.PublicKey) == ed25519.PublicKeySize
}
