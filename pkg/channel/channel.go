// Package channel implements MeshCore group channels: named contexts secured
// by a shared AES-128 key, identified on the wire by a 1-byte hash of that
// key, and the codec for the text messages they carry.
package channel

import (
	"strings"
	"time"

	"github.com/ezmesh/meshcore/pkg/crypto"
)

// PublicName is the default channel every node participates in.
const PublicName = "#Public"

// Channel is a named encrypted group.
type Channel struct {
	Name         string
	Key          [crypto.ChannelKeySize]byte
	Hash         byte // first byte of SHA256(Key), the wire tag
	Joined       bool
	Protected    bool // key derived from a password rather than the name
	LastActivity time.Time
}

// Normalize gives channel names their canonical "#name" form.
func Normalize(name string) string {
	if strings.HasPrefix(name, "#") {
		return name
	}
	return "#" + name
}

// New creates a channel record with its key derived per MeshCore rules:
// the well-known key for #Public, SHA256(password)[0:16] when a password is
// given, SHA256(name)[0:16] otherwise. The channel starts joined.
func New(name, password string) *Channel {
	ch := &Channel{
		Name:   Normalize(name),
		Joined: true,
	}

	switch {
	case ch.Name == PublicName:
		ch.Key = crypto.PublicChannelKey()
	case password != "":
		ch.Key = crypto.DeriveChannelKey(password)
		ch.Protected = true
	default:
		ch.Key = crypto.DeriveChannelKey(ch.Name)
	}

	ch.Hash = crypto.ChannelHash(ch.Key)
	return ch
}
