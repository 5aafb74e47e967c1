// Package identity manages this node's Ed25519 keypair and the identifiers
// derived from it: the 1-byte path hash used for flood-routing loop
// detection, and the short/full hex IDs shown to users.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/ezmesh/meshcore/pkg/crypto"
)

const (
	// MaxNodeName bounds the announced node name, matching the ADVERT layout.
	MaxNodeName = 16

	nodeIDLen  = 6
	shortIDLen = 3
)

// Identity is this device's keypair and derived IDs. The key material is
// immutable for the process lifetime; only the node name can change.
type Identity struct {
	keys *crypto.KeyPair
	name string
}

// New wraps an existing keypair. An empty name defaults to "Node-<shortID>".
func New(keys *crypto.KeyPair, name string) *Identity {
	id := &Identity{keys: keys}
	if name == "" {
		name = "Node-" + id.ShortID()
	}
	id.SetName(name)
	return id
}

// Generate creates an identity with a fresh keypair.
func Generate() (*Identity, error) {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity keypair: %w", err)
	}
	return New(keys, ""), nil
}

// FromSeed restores an identity from a persisted seed.
func FromSeed(seed []byte, name string) (*Identity, error) {
	keys, err := crypto.KeyPairFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to restore identity: %w", err)
	}
	return New(keys, name), nil
}

// PathHash is the 1-byte routing identifier: the first byte of the public key.
func (id *Identity) PathHash() byte {
	return id.keys.PublicKey[0]
}

// PublicKey returns the 32-byte Ed25519 public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.keys.PublicKey
}

// NodeID is the first 6 bytes of the public key.
func (id *Identity) NodeID() []byte {
	return append([]byte(nil), id.keys.PublicKey[:nodeIDLen]...)
}

// FullID is the node ID as 12 hex characters.
func (id *Identity) FullID() string {
	return hex.EncodeToString(id.keys.PublicKey[:nodeIDLen])
}

// ShortID is the first 3 public key bytes as 6 hex characters.
func (id *Identity) ShortID() string {
	return hex.EncodeToString(id.keys.PublicKey[:shortIDLen])
}

// Name returns the configured node name.
func (id *Identity) Name() string {
	return id.name
}

// SetName updates the node name, truncated to the announceable limit.
func (id *Identity) SetName(name string) {
	if len(name) > MaxNodeName {
		name = name[:MaxNodeName]
	}
	id.name = name
}

// Seed exposes the private seed for the persistence collaborator.
func (id *Identity) Seed() []byte {
	return id.keys.Seed()
}

// Sign signs data with the identity key.
func (id *Identity) Sign(data []byte) ([]byte, error) {
	return id.keys.Sign(data)
}

// SharedSecret derives the X25519 shared secret with a peer.
func (id *Identity) SharedSecret(peerPublicKey ed25519.PublicKey) ([]byte, error) {
	return id.keys.SharedSecret(peerPublicKey)
}
